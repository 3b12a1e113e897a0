// Package metrics defines the prometheus collectors for simulation batches.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mmsim"

// Collectors groups the batch metrics. A nil *Collectors is valid and records nothing.
type Collectors struct {
	Runs        *prometheus.CounterVec
	Fills       *prometheus.CounterVec
	RunDuration prometheus.Histogram
	TerminalPnL prometheus.Histogram
}

// New creates the collectors and registers them with reg (if non-nil)
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Simulation runs by outcome",
			},
			[]string{"status"},
		),
		Fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_total",
				Help:      "Executed quotes by side",
			},
			[]string{"side"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single simulation run",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		TerminalPnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "terminal_pnl",
			Help:      "PnL at the last step of each run",
			Buckets:   prometheus.LinearBuckets(-50, 10, 11),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.Runs, c.Fills, c.RunDuration, c.TerminalPnL)
	}
	return c
}

// ObserveRun records a successful run
func (c *Collectors) ObserveRun(seconds float64, askFills, bidFills int, terminalPnL float64) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues("ok").Inc()
	c.Fills.WithLabelValues("ask").Add(float64(askFills))
	c.Fills.WithLabelValues("bid").Add(float64(bidFills))
	c.RunDuration.Observe(seconds)
	c.TerminalPnL.Observe(terminalPnL)
}

// ObserveFailure records a rejected or aborted run
func (c *Collectors) ObserveFailure(status string) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status).Inc()
}
