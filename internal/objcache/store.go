// Package objcache is the durable on-disk store of celestial object records.
//
// The whole cache is one TOML document that is replaced atomically on every
// persist. Readers either see the previous snapshot or the new one, never a
// partial write. Only this package writes the snapshot file.
package objcache

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/star/skywatch/internal/catalog"
)

// snapshotVersion is the on-disk layout version written by Persist.
const snapshotVersion = 1

var (
	// ErrCacheCorrupt is returned when the snapshot file exists but cannot be read back.
	ErrCacheCorrupt = errors.New("cache snapshot corrupt")
	// ErrPersistFailed is returned when a snapshot could not be written. The
	// previous snapshot on disk is left intact.
	ErrPersistFailed = errors.New("cache persist failed")
	// ErrLocked is returned when another run holds the writer lock.
	ErrLocked = errors.New("cache locked by another writer")
	// ErrInvalidPartial is returned by Merge for partials that fail validation.
	ErrInvalidPartial = errors.New("invalid partial record")
)

// Snapshot is an in-memory copy of the cache. It is owned by one goroutine
// at a time; Store never retains it.
type Snapshot struct {
	Version int
	SavedAt time.Time
	Objects map[catalog.ID]catalog.Record
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: snapshotVersion,
		Objects: make(map[catalog.ID]catalog.Record),
	}
}

// Get returns the record stored under id.
func (s *Snapshot) Get(id catalog.ID) (catalog.Record, bool) {
	r, ok := s.Objects[id]
	return r, ok
}

// Len returns the number of cached objects.
func (s *Snapshot) Len() int {
	return len(s.Objects)
}

// Keys yields cached identifiers in lexicographic order. The sequence can be
// ranged over more than once; each pass reflects the snapshot at that time.
func (s *Snapshot) Keys() iter.Seq[catalog.ID] {
	return func(yield func(catalog.ID) bool) {
		for _, id := range slices.Sorted(maps.Keys(s.Objects)) {
			if !yield(id) {
				return
			}
		}
	}
}

// snapshotFile is the TOML-serializable form of Snapshot.
type snapshotFile struct {
	Version int                       `toml:"version"`
	SavedAt time.Time                 `toml:"saved_at"`
	Objects map[string]catalog.Record `toml:"objects"`
}

// Store reads and writes the snapshot file at a fixed path.
type Store struct {
	path   string
	logger *slog.Logger

	// beforeReplace runs after the temp file is durable and before it is
	// renamed over the snapshot. Tests use it to simulate a crash.
	beforeReplace func(tmpPath string) error
}

// Open returns a Store for the snapshot at path. The file does not need to exist.
func Open(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "objcache"),
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot from disk. A missing file yields an empty snapshot.
// A file that cannot be decoded, has an unsupported version or holds invalid
// records is reported as ErrCacheCorrupt and left untouched.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("no cache snapshot, starting empty", "path", s.path)
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading cache snapshot: %w", err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheCorrupt, s.path, err)
	}

	s.logger.Info("cache snapshot loaded",
		"path", s.path,
		"objects", snap.Len(),
		"saved_at", snap.SavedAt,
	)
	return snap, nil
}

func decode(data []byte) (*Snapshot, error) {
	var f snapshotFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	if f.Version == 0 {
		return nil, errors.New("missing version")
	}
	if f.Version > snapshotVersion {
		return nil, fmt.Errorf("unsupported version %d (max %d)", f.Version, snapshotVersion)
	}

	snap := &Snapshot{
		Version: f.Version,
		SavedAt: f.SavedAt,
		Objects: make(map[catalog.ID]catalog.Record, len(f.Objects)),
	}
	for key, rec := range f.Objects {
		id, err := catalog.NewID(key)
		if err != nil || string(id) != key {
			return nil, fmt.Errorf("object key %q is not a normalized identifier", key)
		}
		if rec.Coordinates != nil {
			if err := rec.Coordinates.Validate(); err != nil {
				return nil, fmt.Errorf("object %q: %w", key, err)
			}
		}
		if rec.Orbit != nil {
			if err := rec.Orbit.Validate(); err != nil {
				return nil, fmt.Errorf("object %q: %w", key, err)
			}
		}
		if rec.Kind == "" {
			rec.Kind = catalog.KindUnknown
		}
		rec.ID = id
		snap.Objects[id] = rec
	}
	return snap, nil
}

// Merge applies partial to the record for id in snap, creating the record if
// needed, and returns the result. Fields the partial leaves nil are kept.
// An invalid partial is rejected without touching snap.
func (s *Store) Merge(snap *Snapshot, id catalog.ID, partial catalog.PartialRecord, now time.Time) (catalog.Record, error) {
	if id == "" {
		return catalog.Record{}, fmt.Errorf("%w: %w", ErrInvalidPartial, catalog.ErrEmptyID)
	}
	if err := partial.Validate(); err != nil {
		return catalog.Record{}, fmt.Errorf("%w: %s from %s: %w", ErrInvalidPartial, id, partial.Source, err)
	}

	rec, existed := snap.Objects[id]
	if !existed {
		rec = catalog.Record{ID: id}
	}
	if partial.Name == "" {
		partial.Name = string(id)
	}
	merged := rec.Apply(partial, now)
	snap.Objects[id] = merged

	s.logger.Debug("merged partial",
		"object_id", id,
		"source", partial.Source,
		"created", !existed,
	)
	return merged, nil
}

// Persist writes snap to disk atomically: the document goes to a temp file in
// the snapshot directory, is fsynced and then renamed over the snapshot.
func (s *Store) Persist(snap *Snapshot) error {
	start := time.Now()
	savedAt := start.UTC()

	f := snapshotFile{
		Version: snapshotVersion,
		SavedAt: savedAt,
		Objects: make(map[string]catalog.Record, len(snap.Objects)),
	}
	for id, rec := range snap.Objects {
		f.Objects[string(id)] = rec
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %w", ErrPersistFailed, err)
	}

	if err := s.writeAtomic(data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	snap.Version = snapshotVersion
	snap.SavedAt = savedAt
	s.logger.Info("cache snapshot persisted",
		"path", s.path,
		"objects", len(f.Objects),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}

	if s.beforeReplace != nil {
		if err := s.beforeReplace(tmpPath); err != nil {
			cleanup()
			return err
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("renaming snapshot: %w", err)
	}

	// Make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.logger.Warn("syncing cache dir failed", "dir", dir, "error", err)
		}
		d.Close()
	}
	return nil
}
