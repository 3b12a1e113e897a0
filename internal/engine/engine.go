// Package engine runs the Avellaneda-Stoikov market maker over a single price path.
package engine

import "math"

// Source produces uniform draws in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// model holds the per-run constants derived once from Params
type model struct {
	p       Params
	horizon float64
	a       float64 // base arrival intensity
	half    float64 // half-spread
	spread  float64
}

func newModel(p Params) (*model, error) {
	spread := Spread(p.Gamma, p.K)
	if !finite(spread) || spread < 0 {
		return nil, &NumericDomainError{Step: -1, Quantity: "spread", Value: spread}
	}
	a := BaseIntensity(p.K, p.Dt)
	if !finite(a) {
		return nil, &NumericDomainError{Step: -1, Quantity: "base_intensity", Value: a}
	}
	return &model{
		p:       p,
		horizon: p.Horizon(),
		a:       a,
		half:    spread / 2,
		spread:  spread,
	}, nil
}

// position is the part of the state carried from one step to the next
type position struct {
	q    int
	cash float64
	pnl  float64
}

type quote struct {
	reserve, ask, bid float64
}

func (m *model) quote(i int, s float64, q int) (quote, error) {
	remaining := m.horizon - m.p.Dt*float64(i)
	r := ReservePrice(s, q, m.p.Gamma, m.p.Sigma, remaining)
	if !finite(r) {
		return quote{}, &NumericDomainError{Step: i, Quantity: "reserve_price", Value: r}
	}
	return quote{reserve: r, ask: r + m.half, bid: r - m.half}, nil
}

func (m *model) probability(i int, side string, delta float64) (float64, error) {
	lambda := m.a * math.Exp(-m.p.K*delta)
	if !finite(lambda) {
		return 0, &NumericDomainError{Step: i, Quantity: "intensity_" + side, Value: lambda}
	}
	prob := FillProbability(lambda, m.p.Dt)
	if !finite(prob) || prob < 0 || prob > 1 {
		return 0, &NumericDomainError{Step: i, Quantity: "p_exec_" + side, Value: prob}
	}
	return prob, nil
}

// step applies one fill decision and returns the next position.
// The ask draw is always taken before the bid draw.
func (m *model) step(i int, pos position, qt quote, s float64, src Source) (position, int, int, error) {
	pAsk, err := m.probability(i, "a", qt.ask-s)
	if err != nil {
		return pos, 0, 0, err
	}
	pBid, err := m.probability(i, "b", s-qt.bid)
	if err != nil {
		return pos, 0, 0, err
	}

	var execAsk, execBid int
	if src.Float64() < pAsk {
		execAsk = 1
	}
	if src.Float64() < pBid {
		execBid = 1
	}

	next := position{
		q:    pos.q - execAsk + execBid,
		cash: pos.cash + qt.ask*float64(execAsk) - qt.bid*float64(execBid),
	}
	next.pnl = next.cash + float64(next.q)*s
	return next, execAsk, execBid, nil
}

// Run simulates the market maker over path. Parameters, path shape and the
// random source are checked before anything is allocated; no partial output
// is returned on error.
func Run(path []float64, p Params, src Source) (*Series, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(path) != p.N {
		return nil, &ShapeMismatchError{Want: p.N, Got: len(path)}
	}
	if src == nil && p.N > 1 {
		return nil, &ConfigurationError{Field: "source", Value: nil, Reason: "random source required"}
	}
	for i, s := range path {
		if !finite(s) {
			return nil, &NumericDomainError{Step: i, Quantity: "price", Value: s}
		}
	}

	m, err := newModel(p)
	if err != nil {
		return nil, err
	}

	out := newSeries(p.N)
	out.spread = m.spread

	var pos position
	for i, s := range path {
		qt, err := m.quote(i, s, pos.q)
		if err != nil {
			return nil, err
		}
		out.record(i, State{
			T:       p.Dt * float64(i),
			Price:   s,
			Reserve: qt.reserve,
			Ask:     qt.ask,
			Bid:     qt.bid,
			Q:       pos.q,
			Cash:    pos.cash,
			PnL:     pos.pnl,
		})

		if i == p.N-1 {
			break
		}

		next, a, b, err := m.step(i, pos, qt, s, src)
		if err != nil {
			return nil, err
		}
		out.askFills += a
		out.bidFills += b
		pos = next
	}

	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
