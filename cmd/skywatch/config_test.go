package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/fetch"
	"github.com/star/skywatch/internal/objcache"
	"github.com/star/skywatch/internal/refresh"
	"github.com/star/skywatch/internal/visibility"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newViper(settings map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range settings {
		v.Set(k, val)
	}
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newViper(nil), testLogger())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CallTimeout != fetch.DefaultCallTimeout || cfg.LockTimeout != refresh.DefaultLockTimeout {
		t.Errorf("timeouts = %v, %v", cfg.CallTimeout, cfg.LockTimeout)
	}
	if cfg.Site.SeczMax != visibility.DefaultSeczMax {
		t.Errorf("secz_max = %v", cfg.Site.SeczMax)
	}
	if got := cfg.Site.End.Sub(cfg.Site.Start); got != defaultWindow {
		t.Errorf("default window = %v, want %v", got, defaultWindow)
	}
	if cfg.MaxMagnitude != nil {
		t.Errorf("max magnitude = %v, want unset", *cfg.MaxMagnitude)
	}
}

func TestLoadConfigInvalidNumbersFallBack(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	cfg, err := loadConfig(newViper(map[string]any{
		"workers":       "lots",
		"call_timeout":  "soon",
		"lock_timeout":  "15",
		"site.latitude": "north",
	}), logger)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CallTimeout != fetch.DefaultCallTimeout {
		t.Errorf("call timeout = %v", cfg.CallTimeout)
	}
	if cfg.LockTimeout != 15*time.Second {
		t.Errorf("bare seconds lock timeout = %v", cfg.LockTimeout)
	}
	if cfg.Workers < 1 || cfg.Site.LatitudeDeg != 0 {
		t.Errorf("workers = %d, latitude = %v", cfg.Workers, cfg.Site.LatitudeDeg)
	}
	for _, key := range []string{"invalid workers value", "invalid call_timeout value", "invalid site.latitude value"} {
		if !strings.Contains(logs.String(), key) {
			t.Errorf("no warning %q in %s", key, logs.String())
		}
	}
}

func TestLoadConfigSite(t *testing.T) {
	cfg, err := loadConfig(newViper(map[string]any{
		"site.latitude":  41.0,
		"site.longitude": -87.0,
		"site.elevation": 200,
		"site.start":     "2026-01-15T03:00:00Z",
		"site.end":       "2026-01-15T15:00:00Z",
		"objects":        []string{"Vega", "M 31"},
	}), testLogger())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	if !cfg.Site.Start.Equal(want) || !cfg.Site.End.Equal(want.Add(12*time.Hour)) {
		t.Errorf("window = %v .. %v", cfg.Site.Start, cfg.Site.End)
	}
	if cfg.Site.LatitudeDeg != 41 || cfg.Site.LongitudeDeg != -87 || cfg.Site.ElevationM != 200 {
		t.Errorf("site = %+v", cfg.Site)
	}
	if !slices.Equal(cfg.Objects, []string{"Vega", "M 31"}) {
		t.Errorf("objects = %v", cfg.Objects)
	}
}

func TestSiteAtRollsDefaultWindow(t *testing.T) {
	rolling, err := loadConfig(newViper(map[string]any{"site.latitude": 41.0}), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if !rolling.RollingWindow {
		t.Fatal("default window not rolling")
	}
	later := time.Date(2026, 1, 16, 22, 30, 45, 0, time.UTC)
	site := rolling.siteAt(later)
	if !site.Start.Equal(later.Truncate(time.Minute)) || site.End.Sub(site.Start) != defaultWindow {
		t.Errorf("window at %v = %v .. %v", later, site.Start, site.End)
	}
	if site.LatitudeDeg != 41 {
		t.Errorf("site = %+v", site)
	}

	pinned, err := loadConfig(newViper(map[string]any{"site.start": "2026-01-15T03:00:00Z"}), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if pinned.RollingWindow || !pinned.siteAt(later).Start.Equal(pinned.Site.Start) {
		t.Errorf("configured window moved: %+v", pinned.siteAt(later))
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     error
	}{
		{"reversed window", map[string]any{"site.start": "2026-01-15T15:00:00Z", "site.end": "2026-01-15T03:00:00Z"}, visibility.ErrInvalidGeometryInput},
		{"latitude out of range", map[string]any{"site.latitude": 95.0}, visibility.ErrInvalidGeometryInput},
		{"auth without token", map[string]any{"auth.enabled": true}, auth.ErrNoToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(newViper(tt.settings), testLogger()); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := loadConfig(newViper(map[string]any{"site.start": "yesterday"}), testLogger()); err == nil {
		t.Error("unparsable site.start accepted")
	}
}

func TestStringListSplitsEnvStyle(t *testing.T) {
	v := viper.New()
	v.Set("sources.tle_urls", "https://a.example/tle, https://b.example/tle")
	got := stringList(v, "sources.tle_urls")
	if !slices.Equal(got, []string{"https://a.example/tle", "https://b.example/tle"}) {
		t.Errorf("got %v", got)
	}
}

func TestBuildSources(t *testing.T) {
	cfg, err := loadConfig(newViper(nil), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildSources(cfg, testLogger()); !errors.Is(err, errNoSources) {
		t.Errorf("err = %v, want errNoSources", err)
	}

	cfg.Sources.EphemerisURL = "http://ephem.example"
	cfg.Sources.StellarURL = "http://stars.example"
	cfg.Sources.ImageryURL = "http://sky.example"
	cfg.ArtifactDir = t.TempDir()
	classes, err := buildSources(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildSources: %v", err)
	}
	if !slices.Equal(classes.Ephemeris.Names(), []string{"ephemeris"}) || !slices.Equal(classes.Stellar.Names(), []string{"stellar", "imagery"}) {
		t.Errorf("classes = %v / %v", classes.Ephemeris.Names(), classes.Stellar.Names())
	}
}

func TestRenderReport(t *testing.T) {
	start := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	site := visibility.Site{LatitudeDeg: 41, LongitudeDeg: -87, Start: start, End: start.Add(12 * time.Hour)}

	snap := objcache.NewSnapshot()
	snap.Objects["blank"] = catalog.Record{ID: "blank", Name: "Blank", Kind: catalog.KindUnknown}

	var out bytes.Buffer
	if err := renderReport(&out, site, refresh.Entries(snap, site)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// 2026-01-15 03:00Z is a waning crescent about 13% lit.
	if len(lines) < 3 {
		t.Fatalf("report = %q", out.String())
	}
	if lines[1] != "moon 13% illuminated, Waning Crescent" {
		t.Errorf("moon line = %q", lines[1])
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "blank") || strings.Count(last, " - ") < 3 || !strings.Contains(last, "object has no coordinates") {
		t.Errorf("row = %q", last)
	}

	out.Reset()
	if err := renderReport(&out, site, refresh.Entries(objcache.NewSnapshot(), site)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "(no objects)") {
		t.Errorf("empty report = %q", out.String())
	}
}
