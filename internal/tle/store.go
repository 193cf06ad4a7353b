package tle

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the current TLE dataset.
type Store struct {
	dataset atomic.Pointer[TLEDataset]
	mu      sync.Mutex // serializes fetch operations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *TLEDataset {
	return s.dataset.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *TLEDataset) {
	s.dataset.Store(ds)
}

// Age returns the age of the current dataset, or -1 if none is loaded.
func (s *Store) Age() time.Duration {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt)
}

// Lock acquires the fetch mutex for serializing fetch operations.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}

// NewDataset builds a dataset and its epoch range from parsed entries.
func NewDataset(source string, fetchedAt time.Time, entries []TLEEntry) *TLEDataset {
	ds := &TLEDataset{Source: source, FetchedAt: fetchedAt, Satellites: entries}
	for i, e := range entries {
		if i == 0 || e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
	}
	return ds
}

// Find returns the entry whose name matches name case- and
// whitespace-insensitively, or whose NORAD number equals name (optionally
// prefixed "norad"). The most recent epoch wins among duplicates.
func (ds *TLEDataset) Find(name string) (TLEEntry, bool) {
	key := normalizeName(name)
	norad := -1
	if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(key, "norad"))); err == nil {
		norad = n
	}

	var best TLEEntry
	var found bool
	for _, e := range ds.Satellites {
		if e.NORADID != norad && normalizeName(e.Name) != key {
			continue
		}
		if !found || e.Epoch.After(best.Epoch) {
			best, found = e, true
		}
	}
	return best, found
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
