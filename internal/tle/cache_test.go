package tle

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const issTLE = "ISS (ZARYA)\n1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

func TestCacheLoadLatestEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 3)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrNoCache) {
		t.Errorf("err = %v, want ErrNoCache", err)
	}
}

func TestCacheWritePrunesAndLoadsNewest(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		if err := c.Write([]byte(strings.Repeat("x", i+1)), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("cache holds %d files, want 2", len(entries))
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "xxxx" || !ts.Equal(base.Add(3*time.Hour)) {
		t.Errorf("latest = %q at %v", data, ts)
	}
}

func TestCacheIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "tle-yesterday.txt", ".tle-123.tmp", "tle_1700000000.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("junk"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := NewCache(dir, 1)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrNoCache) {
		t.Fatalf("err = %v, want ErrNoCache with only foreign files", err)
	}

	at := time.Date(2026, 1, 1, 12, 30, 0, 0, time.FixedZone("EST", -5*3600))
	if err := c.Write([]byte(issTLE), at); err != nil {
		t.Fatal(err)
	}
	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != issTLE || !ts.Equal(at) {
		t.Errorf("latest = %q at %v, want the download at %v", data, ts, at)
	}
	// Pruning only touches the cache's own files.
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("foreign file removed: %v", err)
	}
}
