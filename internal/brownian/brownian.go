// Package brownian generates arithmetic Brownian motion price paths:
//
//	s(t+dt) = s(t) + mu*dt + sigma*sqrt(dt)*eps,  eps ~ N(0,1)
package brownian

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams wraps every rejected price process configuration
var ErrInvalidParams = errors.New("invalid price process parameters")

// Params configures one generated path
type Params struct {
	S0    float64 `json:"s0"`    // Starting price
	N     int     `json:"n"`     // Number of samples, including s0
	Dt    float64 `json:"dt"`    // Step size
	Mu    float64 `json:"mu"`    // Drift per unit time
	Sigma float64 `json:"sigma"` // Volatility
}

// DefaultParams mirrors the reference experiment: $100 start, 200 steps of 0.005
func DefaultParams() Params {
	return Params{S0: 100, N: 200, Dt: 0.005, Mu: 0, Sigma: 2}
}

// Validate checks the parameters can produce a finite path
func (p Params) Validate() error {
	switch {
	case p.N < 1:
		return fmt.Errorf("%w: n must be at least 1, got %d", ErrInvalidParams, p.N)
	case !(p.Dt > 0) || math.IsInf(p.Dt, 0):
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidParams, p.Dt)
	case !(p.Sigma >= 0) || math.IsInf(p.Sigma, 0):
		return fmt.Errorf("%w: sigma must be non-negative, got %v", ErrInvalidParams, p.Sigma)
	case math.IsNaN(p.S0) || math.IsInf(p.S0, 0):
		return fmt.Errorf("%w: s0 must be finite, got %v", ErrInvalidParams, p.S0)
	case math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0):
		return fmt.Errorf("%w: mu must be finite, got %v", ErrInvalidParams, p.Mu)
	}
	return nil
}

// NormSource produces standard normal draws. *rand.Rand satisfies it.
type NormSource interface {
	NormFloat64() float64
}

// Path is a generated price path together with the parameters that produced it
type Path struct {
	Params  Params
	Samples []float64
}

// Len returns the number of samples
func (p *Path) Len() int {
	return len(p.Samples)
}

// Last returns the final sample
func (p *Path) Last() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	return p.Samples[len(p.Samples)-1]
}

// Generate produces a path of p.N samples starting at p.S0
func Generate(p Params, src NormSource) (*Path, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParams)
	}

	s := make([]float64, p.N)
	s[0] = p.S0

	drift := p.Mu * p.Dt
	vol := p.Sigma * math.Sqrt(p.Dt)
	for i := 1; i < p.N; i++ {
		s[i] = s[i-1] + drift + vol*src.NormFloat64()
	}

	return &Path{Params: p, Samples: s}, nil
}
