package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/objcache"
	"github.com/star/skywatch/internal/visibility"
)

// SiteFunc returns the site a request made at now is answered for.
type SiteFunc func(now time.Time) visibility.Site

// FixedSite answers every request for the same site and window.
func FixedSite(site visibility.Site) SiteFunc {
	return func(time.Time) visibility.Site { return site }
}

// Catalog holds the snapshot the API serves. Handlers read it while the
// watcher swaps in newer versions.
type Catalog struct {
	store  *objcache.Store
	site   SiteFunc
	now    func() time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	snap *objcache.Snapshot
}

// NewCatalog creates an empty Catalog. Call Reload before serving.
func NewCatalog(store *objcache.Store, site SiteFunc, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		site:   site,
		now:    time.Now,
		logger: logger.With("component", "catalog"),
	}
}

// Reload reads the snapshot from disk. On error the previous snapshot
// stays in place.
func (c *Catalog) Reload() error {
	snap, err := c.store.Load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	metrics.SetCachedObjects(snap.Len())
	c.logger.Info("snapshot loaded", "objects", snap.Len(), "saved_at", snap.SavedAt)
	return nil
}

// Snapshot returns the current snapshot, or nil before the first load.
// Callers must not modify it.
func (c *Catalog) Snapshot() *objcache.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Ready reports whether a snapshot has been loaded.
func (c *Catalog) Ready() bool {
	return c.Snapshot() != nil
}

// Site returns the site windows are computed for right now.
func (c *Catalog) Site() visibility.Site {
	return c.site(c.now())
}
