package brownian

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// constSource returns the same draw every time
type constSource float64

func (c constSource) NormFloat64() float64 { return float64(c) }

func TestGenerate_Length(t *testing.T) {
	p := DefaultParams()
	path, err := Generate(p, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if path.Len() != 200 {
		t.Errorf("expected 200 samples, got %d", path.Len())
	}
	if path.Samples[0] != 100 {
		t.Errorf("expected s0=100, got %f", path.Samples[0])
	}
	if path.Params != p {
		t.Errorf("expected params to be kept with the path")
	}
}

func TestGenerate_ZeroVolatilityIsLinearDrift(t *testing.T) {
	p := Params{S0: 50, N: 11, Dt: 0.1, Mu: 2, Sigma: 0}
	path, err := Generate(p, constSource(5))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i, s := range path.Samples {
		want := 50 + 0.2*float64(i)
		if math.Abs(s-want) > 1e-9 {
			t.Errorf("step %d: expected %f, got %f", i, want, s)
		}
	}
}

func TestGenerate_ScalesShockBySqrtDt(t *testing.T) {
	p := Params{S0: 100, N: 2, Dt: 0.04, Mu: 0, Sigma: 2}
	path, err := Generate(p, constSource(1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// sigma*sqrt(dt) = 2*0.2
	if math.Abs(path.Last()-100.4) > 1e-9 {
		t.Errorf("expected 100.4, got %f", path.Last())
	}
}

func TestGenerate_SingleSample(t *testing.T) {
	path, err := Generate(Params{S0: 7, N: 1, Dt: 1, Sigma: 1}, constSource(1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if path.Len() != 1 || path.Last() != 7 {
		t.Errorf("expected single sample 7, got %v", path.Samples)
	}
}

func TestGenerate_Seeded(t *testing.T) {
	a, _ := Generate(DefaultParams(), rand.New(rand.NewPCG(9, 9)))
	b, _ := Generate(DefaultParams(), rand.New(rand.NewPCG(9, 9)))
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("step %d: expected identical seeded paths", i)
		}
	}
}

func TestGenerate_Invalid(t *testing.T) {
	cases := []Params{
		{S0: 100, N: 0, Dt: 1},
		{S0: 100, N: 10, Dt: 0},
		{S0: 100, N: 10, Dt: 1, Sigma: -1},
		{S0: math.NaN(), N: 10, Dt: 1},
		{S0: 100, N: 10, Dt: 1, Mu: math.Inf(1)},
	}
	for _, p := range cases {
		if _, err := Generate(p, constSource(0)); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("%+v: expected ErrInvalidParams, got %v", p, err)
		}
	}
	if _, err := Generate(DefaultParams(), nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams for nil source, got %v", err)
	}
}
