package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultCacheFiles is how many downloads a Cache keeps when not told otherwise.
const DefaultCacheFiles = 5

// ErrNoCache is returned by LoadLatest when nothing has been cached yet.
var ErrNoCache = errors.New("no cache files found")

// Downloads are named after their UTC download time so names sort in time order.
const (
	cachePrefix = "tle-"
	cacheSuffix = ".txt"
	cacheLayout = "20060102T150405Z"
)

// Cache keeps the last few TLE downloads on disk so the orbital lookup can
// work offline and avoid refetching on every run.
type Cache struct {
	dir  string
	keep int
}

// NewCache returns a Cache rooted at dir that keeps the keep newest downloads.
func NewCache(dir string, keep int) *Cache {
	if keep <= 0 {
		keep = DefaultCacheFiles
	}
	return &Cache{dir: dir, keep: keep}
}

// download is one cached file.
type download struct {
	path string
	at   time.Time
}

func cacheName(at time.Time) string {
	return cachePrefix + at.UTC().Format(cacheLayout) + cacheSuffix
}

// parseCacheName returns the download time encoded in name, or false for
// files the cache did not write.
func parseCacheName(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, cachePrefix)
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, cacheSuffix)
	if !ok {
		return time.Time{}, false
	}
	at, err := time.Parse(cacheLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// Write stores data as the download made at ts and drops downloads beyond
// the newest keep. The file appears under its final name only once fully
// written.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating TLE cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tle-*.tmp")
	if err != nil {
		return fmt.Errorf("creating TLE cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing TLE cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing TLE cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing TLE cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, cacheName(ts))); err != nil {
		return fmt.Errorf("replacing TLE cache file: %w", err)
	}
	return c.prune()
}

// LoadLatest returns the newest download and the time it was made.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	downloads, err := c.downloads()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(downloads) == 0 {
		return nil, time.Time{}, ErrNoCache
	}

	newest := downloads[0]
	data, err := os.ReadFile(newest.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading TLE cache file: %w", err)
	}
	return data, newest.at, nil
}

// downloads lists the cached files, newest first. A missing directory is
// an empty cache.
func (c *Cache) downloads() ([]download, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing TLE cache dir: %w", err)
	}

	var out []download
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if at, ok := parseCacheName(e.Name()); ok {
			out = append(out, download{path: filepath.Join(c.dir, e.Name()), at: at})
		}
	}
	slices.SortFunc(out, func(a, b download) int { return b.at.Compare(a.at) })
	return out, nil
}

func (c *Cache) prune() error {
	downloads, err := c.downloads()
	if err != nil || len(downloads) <= c.keep {
		return err
	}
	var errs []error
	for _, d := range downloads[c.keep:] {
		if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pruning TLE cache: %w", err)
	}
	return nil
}
