package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/propagation"
	"github.com/star/skywatch/internal/tle"
)

// DefaultTLEMaxAge is how long a cached TLE download is used before refetching.
const DefaultTLEMaxAge = 24 * time.Hour

// OrbitalConfig configures the satellite source.
type OrbitalConfig struct {
	// Fetcher downloads TLE data. Nil means cache only.
	Fetcher *tle.Fetcher
	// Cache keeps downloads on disk between runs. Nil disables it.
	Cache  *tle.Cache
	MaxAge time.Duration
	// At is the start of the window the elements are used for. Elements
	// whose epoch is far from it are reported.
	At time.Time
}

// Orbital resolves Earth-orbiting satellites by name or NORAD number. It
// supplies the element set rather than a position; the window computation
// propagates it to every endpoint.
type Orbital struct {
	cfg    OrbitalConfig
	store  *tle.Store
	logger *slog.Logger

	// loadErr is the failure of the first load, kept for the rest of the
	// run. Guarded by the store lock.
	loadErr error
}

// NewOrbital creates the satellite source. The TLE dataset is loaded on
// first use.
func NewOrbital(cfg OrbitalConfig, logger *slog.Logger) (*Orbital, error) {
	if cfg.At.IsZero() {
		return nil, errors.New("orbital source: window start is required")
	}
	if cfg.Fetcher == nil && cfg.Cache == nil {
		return nil, errors.New("orbital source: needs a fetcher or a cache")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultTLEMaxAge
	}
	return &Orbital{
		cfg:    cfg,
		store:  tle.NewStore(),
		logger: logger.With("source", "orbital"),
	}, nil
}

func (o *Orbital) Name() string { return "orbital" }

func (o *Orbital) Fetch(ctx context.Context, id catalog.ID) (catalog.PartialRecord, error) {
	ds, err := o.dataset(ctx)
	if err != nil {
		return catalog.PartialRecord{}, err
	}

	entry, ok := ds.Find(id.String())
	if !ok {
		return catalog.PartialRecord{}, ErrNotFound
	}

	orbit := catalog.Orbit{NORADID: entry.NORADID, Line1: entry.Line1, Line2: entry.Line2}
	if err := orbit.Validate(); err != nil {
		return catalog.PartialRecord{}, fmt.Errorf("orbital %s: %w", id, err)
	}
	// Elements SGP4 rejects are not worth caching.
	if _, err := propagation.NewSGP4Propagator(orbit.Line1, orbit.Line2, orbit.NORADID); err != nil {
		return catalog.PartialRecord{}, err
	}

	kind := catalog.KindSolarSystemBody
	drift := entry.EpochDrift(o.cfg.At)
	if drift > tle.MaxEpochDrift {
		o.logger.Warn("TLE epoch far from window start, positions are approximate",
			"object_id", id,
			"norad_id", entry.NORADID,
			"drift_hours", int(drift.Hours()),
		)
	}
	o.logger.Debug("satellite resolved",
		"object_id", id,
		"norad_id", entry.NORADID,
		"tle_epoch", entry.Epoch.UTC().Format(time.RFC3339),
	)
	return catalog.PartialRecord{
		Source: o.Name(),
		Name:   entry.Name,
		Kind:   &kind,
		Orbit:  &orbit,
	}, nil
}

// dataset returns the loaded TLE dataset, loading it on first use. Callers
// race here on the first batch of lookups; the store lock makes sure only
// one of them downloads. A failed load is not retried.
func (o *Orbital) dataset(ctx context.Context) (*tle.TLEDataset, error) {
	if ds := o.store.Get(); ds != nil {
		return ds, nil
	}

	o.store.Lock()
	defer o.store.Unlock()
	if ds := o.store.Get(); ds != nil {
		return ds, nil
	}
	if o.loadErr != nil {
		return nil, o.loadErr
	}
	ds, err := o.loadDataset(ctx)
	if err != nil {
		o.loadErr = err
		return nil, err
	}
	return ds, nil
}

// loadDataset tries a fresh cache, then the network, then a stale cache.
// Called with the store lock held.
func (o *Orbital) loadDataset(ctx context.Context) (*tle.TLEDataset, error) {
	var stale []byte
	var staleAt time.Time
	if o.cfg.Cache != nil {
		data, ts, err := o.cfg.Cache.LoadLatest()
		switch {
		case err == nil && time.Since(ts) < o.cfg.MaxAge:
			return o.load("cache", data, ts)
		case err == nil:
			stale, staleAt = data, ts
		case !errors.Is(err, tle.ErrNoCache):
			o.logger.Warn("reading TLE cache failed", "error", err)
		}
	}

	if o.cfg.Fetcher != nil {
		data, err := o.cfg.Fetcher.Fetch(ctx)
		if err == nil {
			now := time.Now()
			if o.cfg.Cache != nil {
				if err := o.cfg.Cache.Write(data, now); err != nil {
					o.logger.Warn("writing TLE cache failed", "error", err)
				}
			}
			return o.load(o.cfg.Fetcher.SourceURL(), data, now)
		}
		if stale == nil {
			return nil, fmt.Errorf("loading TLE data: %w", err)
		}
		o.logger.Warn("TLE fetch failed, using stale cache", "error", err, "cached_at", staleAt.Format(time.RFC3339))
	}

	if stale == nil {
		return nil, errors.New("loading TLE data: no cached dataset")
	}
	return o.load("cache", stale, staleAt)
}

func (o *Orbital) load(source string, data []byte, fetchedAt time.Time) (*tle.TLEDataset, error) {
	entries, err := tle.Parse(bytes.NewReader(data), o.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing TLE data: %w", err)
	}
	ds := tle.NewDataset(source, fetchedAt, entries)
	o.store.Set(ds)
	o.logger.Info("TLE dataset loaded",
		"dataset_source", source,
		"count", len(entries),
		"fetched_at", fetchedAt.UTC().Format(time.RFC3339),
		"age_minutes", int(o.store.Age().Minutes()),
	)
	return ds, nil
}
