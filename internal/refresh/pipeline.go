// Package refresh runs one fetch-and-merge pass over a list of identifiers
// and pairs the cached records with their visibility windows.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/fetch"
	"github.com/star/skywatch/internal/lookup"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/objcache"
)

// DefaultLockTimeout bounds the wait for the cache writer lock.
const DefaultLockTimeout = 10 * time.Second

// Config selects the sources of the two lookup classes.
type Config struct {
	// Ephemeris is tried first for every identifier: solar-system bodies
	// and satellites.
	Ephemeris lookup.Class
	// Stellar gets the identifiers the ephemeris class could not resolve.
	Stellar     lookup.Class
	LockTimeout time.Duration
}

// Pipeline is the refresh use case.
type Pipeline struct {
	store  *objcache.Store
	coord  *fetch.Coordinator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(store *objcache.Store, coord *fetch.Coordinator, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	return &Pipeline{
		store:  store,
		coord:  coord,
		cfg:    cfg,
		logger: logger.With("component", "refresh"),
		now:    time.Now,
	}
}

// Unresolved is an identifier no source could resolve, with each source's reason.
type Unresolved struct {
	ID      catalog.ID
	Reasons []fetch.Failure
}

// Report summarizes a committed run.
type Report struct {
	RunID      string
	Requested  int
	Resolved   []catalog.ID
	Unresolved []Unresolved
	Merged     int
	Snapshot   *objcache.Snapshot
}

// Run resolves ids and commits the results. Lookups run without the writer
// lock; the lock is only held while the latest snapshot is reloaded, merged
// and persisted, so concurrent runs never lose each other's updates.
// Cache corruption, lock contention and persist failures are returned as
// errors; unresolved identifiers are not.
func (p *Pipeline) Run(ctx context.Context, ids []catalog.ID) (*Report, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	ids = dedupe(ids)
	start := time.Now()

	logger.Info("refresh started",
		"objects", len(ids),
		"ephemeris_sources", p.cfg.Ephemeris.Names(),
		"stellar_sources", p.cfg.Stellar.Names(),
	)

	prior, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	lookupCtx := lookup.WithPrior(ctx, prior)

	passes := make([]*fetch.Result, 0, 2)
	pending := ids
	for _, class := range []lookup.Class{p.cfg.Ephemeris, p.cfg.Stellar} {
		if len(pending) == 0 || len(class) == 0 {
			continue
		}
		res := p.coord.Dispatch(lookupCtx, pending, class)
		passes = append(passes, res)
		pending = res.Unresolved()
	}

	report := &Report{RunID: runID, Requested: len(ids)}
	for _, res := range passes {
		report.Resolved = append(report.Resolved, res.Resolved()...)
	}
	report.Unresolved = unresolved(pending, passes)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh canceled before commit: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, p.cfg.LockTimeout)
	defer cancel()
	unlock, err := p.store.Lock(lockCtx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Merge onto what is on disk now, not what was read before the lookups.
	snap, err := p.store.Load()
	if err != nil {
		return nil, err
	}

	now := p.now()
	for _, res := range passes {
		n, err := res.Apply(p.store, snap, now)
		report.Merged += n
		if err != nil {
			return nil, err
		}
	}

	if report.Merged > 0 {
		persistStart := time.Now()
		err := p.store.Persist(snap)
		metrics.ObservePersist(time.Since(persistStart), err)
		if err != nil {
			return nil, err
		}
	}
	report.Snapshot = snap

	metrics.SetCachedObjects(snap.Len())
	metrics.AddUnresolved(len(report.Unresolved))

	for _, u := range report.Unresolved {
		logger.Info("object unresolved", "object_id", u.ID, "reasons", reasons(u.Reasons))
	}
	logger.Info("refresh committed",
		"resolved", len(report.Resolved),
		"unresolved", len(report.Unresolved),
		"merged", report.Merged,
		"cached", snap.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

func dedupe(ids []catalog.ID) []catalog.ID {
	seen := make(map[catalog.ID]bool, len(ids))
	out := make([]catalog.ID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// unresolved collects, for each id left over, the failures from every pass.
func unresolved(ids []catalog.ID, passes []*fetch.Result) []Unresolved {
	out := make([]Unresolved, 0, len(ids))
	for _, id := range ids {
		u := Unresolved{ID: id}
		for _, res := range passes {
			if o, ok := res.Outcome(id); ok {
				u.Reasons = append(u.Reasons, o.Failures...)
			}
		}
		out = append(out, u)
	}
	return out
}

func reasons(fs []fetch.Failure) map[string]string {
	m := make(map[string]string, len(fs))
	for _, f := range fs {
		m[f.Source] = f.Reason()
	}
	return m
}
