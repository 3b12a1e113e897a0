package batch

import (
	"context"
	"fmt"
	"math/rand/v2"

	"mmsim/internal/brownian"
	"mmsim/internal/engine"
	"mmsim/internal/pathstore"
)

// pathStream separates price generation draws from fill draws under one seed
const pathStream = 0x9e3779b97f4a7c15

// PathWriter persists generated paths
type PathWriter interface {
	InsertBatch(ctx context.Context, batch string, paths []*brownian.Path) ([]string, error)
}

// PathReader loads persisted paths
type PathReader interface {
	ByBatch(ctx context.Context, batch string) ([]*pathstore.StoredPath, error)
}

// PathSource returns the normal source used to generate path index under seed
func PathSource(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed^pathStream, uint64(index)))
}

// GenerateAndStore creates count paths with proc and stores them under batch
func GenerateAndStore(ctx context.Context, w PathWriter, batch string, proc brownian.Params, count int, seed uint64) ([]string, error) {
	if count < 1 {
		return nil, ErrNoPaths
	}

	paths := make([]*brownian.Path, count)
	for i := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := brownian.Generate(proc, PathSource(seed, i))
		if err != nil {
			return nil, fmt.Errorf("generate path %d: %w", i, err)
		}
		paths[i] = p
	}

	ids, err := w.InsertBatch(ctx, batch, paths)
	if err != nil {
		return nil, fmt.Errorf("store paths: %w", err)
	}
	return ids, nil
}

// RunStored loads every path of batch and simulates it
func (r *Runner) RunStored(ctx context.Context, rd PathReader, batch string, params engine.Params) (*Result, error) {
	stored, err := rd.ByBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("load paths: %w", err)
	}
	if len(stored) == 0 {
		return nil, ErrNoPaths
	}

	paths := make([][]float64, len(stored))
	ids := make([]string, len(stored))
	for i, sp := range stored {
		paths[i] = sp.Path.Samples
		ids[i] = sp.ID
	}

	res, err := r.Run(ctx, paths, params)
	if err != nil {
		return nil, err
	}
	res.PathIDs = ids
	return res, nil
}
