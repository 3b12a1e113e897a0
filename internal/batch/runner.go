// Package batch runs many independent market maker simulations in parallel
// and collects their output by run index.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"mmsim/internal/engine"
	"mmsim/internal/logging"
	"mmsim/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoPaths is returned when a batch has nothing to simulate
var ErrNoPaths = errors.New("no price paths to simulate")

// Runner executes one engine run per price path
type Runner struct {
	Workers int    // Max concurrent runs, 0 means GOMAXPROCS
	Seed    uint64 // Base seed; run i draws from stream i
	Logger  *zap.Logger
	Metrics *metrics.Collectors

	// OnRunComplete is called from the worker goroutine after each successful run
	OnRunComplete func(index int, s *engine.Series)
}

// Result holds every run of a batch, ordered by input index
type Result struct {
	Params  engine.Params
	Seed    uint64
	PathIDs []string
	Runs    []*engine.Series
	Elapsed time.Duration
}

// Len returns the number of runs
func (r *Result) Len() int {
	return len(r.Runs)
}

// FillSource returns the random source used for run index under seed.
// Reusing it reproduces a run exactly.
func FillSource(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(index)))
}

func (r *Runner) workers(n int) int {
	w := r.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	return w
}

// Run simulates each path with params. Parameters are validated before any
// run starts. Cancelling ctx stops runs that have not started yet; the first
// run error cancels the rest and is returned.
func (r *Runner) Run(ctx context.Context, paths [][]float64, params engine.Params) (*Result, error) {
	log := logging.OrNop(r.Logger)

	if len(paths) == 0 {
		return nil, ErrNoPaths
	}
	if err := params.Validate(); err != nil {
		r.Metrics.ObserveFailure("rejected")
		return nil, err
	}
	for i, path := range paths {
		if len(path) != params.N {
			r.Metrics.ObserveFailure("rejected")
			return nil, fmt.Errorf("run %d: %w", i, &engine.ShapeMismatchError{Want: params.N, Got: len(path)})
		}
	}

	start := time.Now()
	runs := make([]*engine.Series, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers(len(paths)))

	for i := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			t0 := time.Now()
			s, err := engine.Run(paths[i], params, FillSource(r.Seed, i))
			if err != nil {
				r.Metrics.ObserveFailure("error")
				return fmt.Errorf("run %d: %w", i, err)
			}

			ask, bid := s.Fills()
			r.Metrics.ObserveRun(time.Since(t0).Seconds(), ask, bid, s.Last().PnL)
			log.Debug("run complete",
				zap.Int("index", i),
				zap.Int("ask_fills", ask),
				zap.Int("bid_fills", bid),
				zap.Float64("pnl", s.Last().PnL),
			)

			runs[i] = s
			if r.OnRunComplete != nil {
				r.OnRunComplete(i, s)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil && incomplete(runs) {
		// the loop stopped before scheduling every run
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.Metrics.ObserveFailure("cancelled")
		}
		log.Warn("batch aborted", zap.Int("runs", len(paths)), zap.Error(err))
		return nil, err
	}

	res := &Result{
		Params:  params,
		Seed:    r.Seed,
		Runs:    runs,
		Elapsed: time.Since(start),
	}
	log.Info("batch complete",
		zap.Int("runs", len(runs)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func incomplete(runs []*engine.Series) bool {
	for _, s := range runs {
		if s == nil {
			return true
		}
	}
	return false
}
