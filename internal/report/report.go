// Package report summarises batch results and writes them as CSV for plotting.
package report

import (
	"math"

	"mmsim/internal/batch"
	"mmsim/internal/engine"

	"github.com/shopspring/decimal"
)

// Places is the rounding applied to every reported monetary value
const Places = 4

// Summary aggregates the terminal outcome of every run in a batch
type Summary struct {
	Runs           int               `json:"runs"`
	Steps          int               `json:"steps"`
	Seed           uint64            `json:"seed"`
	Spread         decimal.Decimal   `json:"spread"`
	MeanPnL        decimal.Decimal   `json:"mean_pnl"`
	StdPnL         decimal.Decimal   `json:"std_pnl"`
	MinPnL         decimal.Decimal   `json:"min_pnl"`
	MaxPnL         decimal.Decimal   `json:"max_pnl"`
	MeanAbsQ       decimal.Decimal   `json:"mean_abs_q"`
	AskFills       int               `json:"ask_fills"`
	BidFills       int               `json:"bid_fills"`
	ProfitableRate decimal.Decimal   `json:"profitable_rate"`
	MeanPnLCurve   []decimal.Decimal `json:"mean_pnl_curve"`
	ElapsedMs      int64             `json:"elapsed_ms"`
}

// Build computes the summary of res. A nil or empty result yields a zero summary.
func Build(res *batch.Result) Summary {
	var sum Summary
	if res == nil || res.Len() == 0 {
		return sum
	}

	runs := res.Runs
	sum.Runs = len(runs)
	sum.Steps = runs[0].Len()
	sum.Seed = res.Seed
	sum.Spread = dec(runs[0].Spread())
	sum.ElapsedMs = res.Elapsed.Milliseconds()

	terminal := make([]float64, len(runs))
	var absQ float64
	profitable := 0
	for i, s := range runs {
		last := s.Last()
		terminal[i] = last.PnL
		absQ += math.Abs(float64(last.Q))
		if last.PnL > 0 {
			profitable++
		}
		ask, bid := s.Fills()
		sum.AskFills += ask
		sum.BidFills += bid
	}

	mean, std := moments(terminal)
	lo, hi := terminal[0], terminal[0]
	for _, v := range terminal[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	n := float64(len(runs))
	sum.MeanPnL = dec(mean)
	sum.StdPnL = dec(std)
	sum.MinPnL = dec(lo)
	sum.MaxPnL = dec(hi)
	sum.MeanAbsQ = dec(absQ / n)
	sum.ProfitableRate = dec(float64(profitable) / n)
	sum.MeanPnLCurve = meanCurve(runs, sum.Steps)
	return sum
}

// moments returns the mean and sample standard deviation of xs
func moments(xs []float64) (mean, std float64) {
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range xs {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func meanCurve(runs []*engine.Series, steps int) []decimal.Decimal {
	acc := make([]float64, steps)
	for _, s := range runs {
		for i, v := range s.PnL() {
			if i < steps {
				acc[i] += v
			}
		}
	}
	out := make([]decimal.Decimal, steps)
	for i, v := range acc {
		out[i] = dec(v / float64(len(runs)))
	}
	return out
}

// dec rounds x for reporting; non-finite values report as zero
func dec(x float64) decimal.Decimal {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(x).Round(Places)
}
