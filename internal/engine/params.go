package engine

import "math"

// LotSize is the quantity filled on a side when a quote executes
const LotSize = 1

// Params holds the model inputs for one simulation run
type Params struct {
	Gamma float64 // Risk aversion, > 0
	K     float64 // Market-impact coefficient, > 0
	Sigma float64 // Price volatility used in the inventory skew, >= 0
	Dt    float64 // Step size, > 0
	N     int     // Step count, >= 1
}

// Validate rejects parameters the recursion cannot run with
func (p Params) Validate() error {
	switch {
	case !(p.Gamma > 0) || math.IsInf(p.Gamma, 0):
		return &ConfigurationError{Field: "gamma", Value: p.Gamma, Reason: "must be positive and finite"}
	case !(p.K > 0) || math.IsInf(p.K, 0):
		return &ConfigurationError{Field: "k", Value: p.K, Reason: "must be positive and finite"}
	case !(p.Dt > 0) || math.IsInf(p.Dt, 0):
		return &ConfigurationError{Field: "dt", Value: p.Dt, Reason: "must be positive and finite"}
	case p.N < 1:
		return &ConfigurationError{Field: "n", Value: p.N, Reason: "must be at least 1"}
	case !(p.Sigma >= 0) || math.IsInf(p.Sigma, 0):
		return &ConfigurationError{Field: "sigma", Value: p.Sigma, Reason: "must be non-negative and finite"}
	}
	return nil
}

// Horizon returns the trading horizon T = n*dt
func (p Params) Horizon() float64 {
	return float64(p.N) * p.Dt
}

// Spread returns the closed-form optimal spread (2/gamma)*ln(1+gamma/k)
func Spread(gamma, k float64) float64 {
	return (2 / gamma) * math.Log1p(gamma/k)
}

// ReservePrice skews the market price s against inventory q over the remaining horizon
func ReservePrice(s float64, q int, gamma, sigma, remaining float64) float64 {
	if q == 0 {
		return s
	}
	return s - float64(q)*gamma*sigma*sigma*remaining
}

// BaseIntensity returns A = 1/(dt*exp(k*M/2)) for lot size M
func BaseIntensity(k, dt float64) float64 {
	return 1 / (dt * math.Exp(k*LotSize/2))
}

// FillProbability converts an arrival intensity into the probability of at
// least one arrival over dt under a Poisson process
func FillProbability(lambda, dt float64) float64 {
	return -math.Expm1(-lambda * dt)
}
