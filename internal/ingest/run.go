package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent table loads within one run.
const DefaultParallelism = 4

// RunResult maps table name to its outcome for one multi-table run.
type RunResult struct {
	RunID  string
	Tables map[string]*Result
}

// Failed reports whether any table in the run failed.
func (r *RunResult) Failed() bool {
	for _, res := range r.Tables {
		if res.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// Runner executes multi-table runs with bounded parallelism. Tables are
// independent: a failing table never aborts its siblings.
type Runner struct {
	Loader      *Loader
	Parallelism int
}

// NewRunner wraps a loader with default parallelism.
func NewRunner(l *Loader) *Runner {
	return &Runner{Loader: l, Parallelism: DefaultParallelism}
}

// Run ingests every batch into the dataset and returns one result per table.
func (r *Runner) Run(ctx context.Context, dataset string, batches []Batch) *RunResult {
	runID := uuid.NewString()
	out := &RunResult{RunID: runID, Tables: make(map[string]*Result, len(batches))}

	limit := r.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			// Load reports failures as results, so sibling batches
			// always keep running.
			res := r.Loader.load(gctx, dataset, runID, batch)
			mu.Lock()
			out.Tables[batch.Table] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
