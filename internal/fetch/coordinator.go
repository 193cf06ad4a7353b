// Package fetch fans identifier lookups out to remote sources on a bounded
// worker pool and collects the results in a fixed order.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/lookup"
	"github.com/star/skywatch/internal/metrics"
)

// DefaultCallTimeout bounds a single source call when Config leaves it unset.
const DefaultCallTimeout = 30 * time.Second

var (
	// ErrLookupTimeout is recorded for a call that did not return within the call timeout.
	ErrLookupTimeout = errors.New("lookup timed out")
	// ErrSourcePanic is recorded for a call whose source panicked.
	ErrSourcePanic = errors.New("lookup source panicked")
	// ErrInvalidResult is recorded for a call that returned a partial failing validation.
	ErrInvalidResult = errors.New("lookup returned invalid record")
)

// Config controls the worker pool.
type Config struct {
	Workers     int
	CallTimeout time.Duration
}

// Coordinator runs lookups for many (identifier, source) pairs concurrently.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator. Zero values fall back to NumCPU
// workers and DefaultCallTimeout.
func NewCoordinator(cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Coordinator{
		cfg:    cfg,
		logger: logger.With("component", "fetch"),
	}
}

// job is one (identifier, source) pair, addressed by index so the result
// lands in a fixed slot regardless of completion order.
type job struct {
	idIdx  int
	srcIdx int
}

type jobResult struct {
	job
	partial catalog.PartialRecord
	err     error
}

// Dispatch queries every source for every identifier and waits for all calls
// to finish or be abandoned. A failing, slow or panicking source only affects
// its own slots.
func (c *Coordinator) Dispatch(ctx context.Context, ids []catalog.ID, sources []lookup.Source) *Result {
	start := time.Now()
	res := newResult(ids, sources)
	total := len(ids) * len(sources)
	if total == 0 {
		return res
	}

	workers := min(c.cfg.Workers, total)

	jobs := make(chan job, workers*2)
	results := make(chan jobResult, workers*2)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				p, err := c.call(ctx, ids[j.idIdx], sources[j.srcIdx])
				results <- jobResult{job: j, partial: p, err: err}
			}
		}()
	}

	// Feed jobs in a goroutine. Unfed jobs are filled in as canceled below.
	go func() {
		defer close(jobs)
		for i := range ids {
			for s := range sources {
				select {
				case jobs <- job{idIdx: i, srcIdx: s}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([][]bool, len(ids))
	for i := range done {
		done[i] = make([]bool, len(sources))
	}
	for r := range results {
		done[r.idIdx][r.srcIdx] = true
		res.set(r.idIdx, r.srcIdx, r.partial, r.err)
	}
	for i := range ids {
		for s := range sources {
			if !done[i][s] {
				res.set(i, s, catalog.PartialRecord{}, fmt.Errorf("not dispatched: %w", context.Cause(ctx)))
			}
		}
	}

	c.logger.Info("dispatch complete",
		"objects", len(ids),
		"sources", len(sources),
		"calls", total,
		"resolved", len(res.Resolved()),
		"unresolved", len(res.Unresolved()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// call runs one source call under the per-call timeout. If the source
// ignores its context the call is abandoned at the deadline; the source
// goroutine finishes on its own and its result is dropped.
func (c *Coordinator) call(ctx context.Context, id catalog.ID, src lookup.Source) (catalog.PartialRecord, error) {
	name := src.Name()
	if err := ctx.Err(); err != nil {
		metrics.ObserveLookup(name, "canceled", 0)
		return catalog.PartialRecord{}, err
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	type ret struct {
		p   catalog.PartialRecord
		err error
	}
	out := make(chan ret, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- ret{err: fmt.Errorf("%w: %v", ErrSourcePanic, r)}
			}
		}()
		p, err := src.Fetch(callCtx, id)
		out <- ret{p: p, err: err}
	}()

	var r ret
	select {
	case r = <-out:
	case <-callCtx.Done():
		r.err = callCtx.Err()
	}

	if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
		r.err = fmt.Errorf("%w after %s", ErrLookupTimeout, c.cfg.CallTimeout)
	}
	if r.err == nil {
		if r.p.Source == "" {
			r.p.Source = name
		}
		if err := r.p.Validate(); err != nil {
			r.err = fmt.Errorf("%w: %w", ErrInvalidResult, err)
		}
	}

	elapsed := time.Since(start)
	outcome := outcomeLabel(r.err)
	metrics.ObserveLookup(name, outcome, elapsed)

	switch outcome {
	case "ok":
		c.logger.Debug("lookup succeeded", "object_id", id, "source", name, "duration_ms", elapsed.Milliseconds())
	case "not_found", "canceled":
		c.logger.Debug("lookup returned nothing", "object_id", id, "source", name, "reason", outcome)
	default:
		c.logger.Warn("lookup failed",
			"object_id", id,
			"source", name,
			"reason", outcome,
			"duration_ms", elapsed.Milliseconds(),
			"error", r.err,
		)
	}

	if r.err != nil {
		return catalog.PartialRecord{}, r.err
	}
	return r.p, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lookup.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLookupTimeout):
		return "timeout"
	case errors.Is(err, ErrSourcePanic):
		return "panic"
	case errors.Is(err, ErrInvalidResult):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
