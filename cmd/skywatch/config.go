package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/fetch"
	"github.com/star/skywatch/internal/lookup"
	"github.com/star/skywatch/internal/refresh"
	"github.com/star/skywatch/internal/tle"
	"github.com/star/skywatch/internal/visibility"
)

const defaultWindow = 8 * time.Hour

// appConfig is the resolved configuration shared by the subcommands.
type appConfig struct {
	CachePath   string
	ArtifactDir string
	Workers     int
	CallTimeout time.Duration
	LockTimeout time.Duration
	Objects     []string
	Site        visibility.Site
	// RollingWindow is set when no window was configured: long-running
	// commands then move the default window along with the clock.
	RollingWindow bool
	Sources       sourcesConfig

	HTTPAddr     string
	TrustProxy   bool
	MaxPerIP     int
	Auth         auth.Config
	MetricsFile  string
	MaxMagnitude *float64
}

type sourcesConfig struct {
	EphemerisURL string
	StellarURL   string
	ImageryURL   string
	Imagery      lookup.ImageryParams
	TLEURLs      []string
	TLECacheDir  string
	TLEMaxFiles  int
	TLEMaxAge    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_path", "skywatch-cache.toml")
	v.SetDefault("artifact_dir", "artifacts")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("call_timeout", fetch.DefaultCallTimeout.String())
	v.SetDefault("lock_timeout", refresh.DefaultLockTimeout.String())
	v.SetDefault("log_level", "info")
	v.SetDefault("site.latitude", 0.0)
	v.SetDefault("site.longitude", 0.0)
	v.SetDefault("site.elevation", 0.0)
	v.SetDefault("site.secz_max", visibility.DefaultSeczMax)
	v.SetDefault("sources.imagery.width", 512)
	v.SetDefault("sources.imagery.height", 512)
	v.SetDefault("sources.imagery.field_deg", 0.5)
	v.SetDefault("sources.imagery.scaling", "linear")
	v.SetDefault("sources.tle_cache_dir", "tle-cache")
	v.SetDefault("sources.tle_max_files", tle.DefaultCacheFiles)
	v.SetDefault("sources.tle_max_age", lookup.DefaultTLEMaxAge.String())
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("http_max_concurrent_per_ip", 10)
	v.SetDefault("auth.enabled", false)
}

// loadConfig reads every setting from v. A malformed number or duration is
// logged and replaced by its default; a site window that cannot be parsed,
// or auth enabled without a token, is an error.
func loadConfig(v *viper.Viper, logger *slog.Logger) (appConfig, error) {
	cfg := appConfig{
		CachePath:   v.GetString("cache_path"),
		ArtifactDir: v.GetString("artifact_dir"),
		Workers:     intSetting(v, logger, "workers", runtime.NumCPU()),
		CallTimeout: durationSetting(v, logger, "call_timeout", fetch.DefaultCallTimeout),
		LockTimeout: durationSetting(v, logger, "lock_timeout", refresh.DefaultLockTimeout),
		Objects:     stringList(v, "objects"),
		HTTPAddr:    v.GetString("http_addr"),
		TrustProxy:  boolSetting(v, logger, "trust_proxy", false),
		MaxPerIP:    intSetting(v, logger, "http_max_concurrent_per_ip", 10),
		MetricsFile: v.GetString("metrics_file"),
		Auth: auth.Config{
			Enabled: boolSetting(v, logger, "auth.enabled", false),
			Token:   v.GetString("auth.token"),
		},
		Sources: sourcesConfig{
			EphemerisURL: v.GetString("sources.ephemeris_url"),
			StellarURL:   v.GetString("sources.stellar_url"),
			ImageryURL:   v.GetString("sources.imagery_url"),
			Imagery: lookup.ImageryParams{
				Width:    intSetting(v, logger, "sources.imagery.width", 512),
				Height:   intSetting(v, logger, "sources.imagery.height", 512),
				FieldDeg: floatSetting(v, logger, "sources.imagery.field_deg", 0.5),
				Scaling:  v.GetString("sources.imagery.scaling"),
			},
			TLEURLs:     stringList(v, "sources.tle_urls"),
			TLECacheDir: v.GetString("sources.tle_cache_dir"),
			TLEMaxFiles: intSetting(v, logger, "sources.tle_max_files", tle.DefaultCacheFiles),
			TLEMaxAge:   durationSetting(v, logger, "sources.tle_max_age", lookup.DefaultTLEMaxAge),
		},
	}

	if v.IsSet("report.max_magnitude") {
		m, err := strconv.ParseFloat(v.GetString("report.max_magnitude"), 64)
		if err != nil {
			logger.Warn("invalid report.max_magnitude value, showing all objects", "value", v.GetString("report.max_magnitude"))
		} else {
			cfg.MaxMagnitude = &m
		}
	}

	site, err := loadSite(v, logger, time.Now())
	if err != nil {
		return cfg, err
	}
	cfg.Site = site
	cfg.RollingWindow = v.GetString("site.start") == "" && v.GetString("site.end") == ""

	if err := cfg.Auth.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// siteAt returns the site for a request made at now. A configured window
// is returned as is; the default one starts at now.
func (c appConfig) siteAt(now time.Time) visibility.Site {
	if !c.RollingWindow {
		return c.Site
	}
	site := c.Site
	site.Start = now.UTC().Truncate(time.Minute)
	site.End = site.Start.Add(defaultWindow)
	return site
}

// loadSite builds the observation site. The window defaults to now through
// eight hours later.
func loadSite(v *viper.Viper, logger *slog.Logger, now time.Time) (visibility.Site, error) {
	site := visibility.Site{
		LatitudeDeg:  floatSetting(v, logger, "site.latitude", 0),
		LongitudeDeg: floatSetting(v, logger, "site.longitude", 0),
		ElevationM:   floatSetting(v, logger, "site.elevation", 0),
		SeczMax:      floatSetting(v, logger, "site.secz_max", visibility.DefaultSeczMax),
		Start:        now.UTC().Truncate(time.Minute),
	}
	if site.SeczMax <= 0 {
		logger.Warn("site.secz_max must be positive, using default", "value", site.SeczMax, "default", visibility.DefaultSeczMax)
		site.SeczMax = visibility.DefaultSeczMax
	}

	if s := v.GetString("site.start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return site, fmt.Errorf("site.start: %w", err)
		}
		site.Start = t.UTC()
	}
	site.End = site.Start.Add(defaultWindow)
	if s := v.GetString("site.end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return site, fmt.Errorf("site.end: %w", err)
		}
		site.End = t.UTC()
	}

	if err := site.Validate(); err != nil {
		return site, err
	}
	return site, nil
}

func intSetting(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", s, "default", def)
		return def
	}
	return n
}

func floatSetting(v *viper.Viper, logger *slog.Logger, key string, def float64) float64 {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", s, "default", def)
		return def
	}
	return f
}

// durationSetting accepts Go durations ("45s") or a bare number of seconds.
func durationSetting(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		n, nerr := strconv.Atoi(s)
		if nerr != nil {
			d = 0
		} else {
			d = time.Duration(n) * time.Second
		}
	}
	if d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", s, "default", def.String())
		return def
	}
	return d
}

func boolSetting(v *viper.Viper, logger *slog.Logger, key string, def bool) bool {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", s, "default", def)
		return def
	}
	return b
}

// stringList reads a YAML list or, from the environment, a comma-separated
// string.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

var errNoSources = errors.New("no lookup sources configured: set sources.ephemeris_url, sources.stellar_url, sources.imagery_url or sources.tle_urls")
