package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/skywatch/internal/catalog"
	"github.com/star/skywatch/internal/fetch"
	"github.com/star/skywatch/internal/lookup"
	"github.com/star/skywatch/internal/metrics"
	"github.com/star/skywatch/internal/objcache"
	"github.com/star/skywatch/internal/refresh"
	"github.com/star/skywatch/internal/tle"
	"github.com/star/skywatch/internal/transform"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [object...]",
	Short: "Resolve objects against the configured sources and update the cache",
	Long:  "Refresh looks up each object (the arguments, or the objects config list) and merges the results into the cache snapshot. Objects no source knows are reported but do not fail the run.",
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = cfg.Objects
	}
	ids := make([]catalog.ID, 0, len(names))
	for _, n := range names {
		id, err := catalog.NewID(n)
		if err != nil {
			logger.Warn("skipping object name", "value", n, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no objects to refresh: pass names or set objects in the config")
	}

	classes, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}

	store := objcache.Open(cfg.CachePath, logger)
	coord := fetch.NewCoordinator(fetch.Config{Workers: cfg.Workers, CallTimeout: cfg.CallTimeout}, logger)
	classes.LockTimeout = cfg.LockTimeout
	pipeline := refresh.New(store, coord, classes, logger)

	moon := transform.MoonAt(cfg.Site.Start)
	logger.Info("moon at window start",
		"illumination_pct", int(moon.Illumination*100+0.5),
		"phase", moon.Phase,
		"at", cfg.Site.Start.Format(time.RFC3339),
	)

	rep, runErr := pipeline.Run(cmd.Context(), ids)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("writing metrics file failed", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		logger.Error("refresh failed", "error", runErr)
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "resolved %d of %d objects, cache holds %d\n", len(rep.Resolved), rep.Requested, rep.Snapshot.Len())
	for _, u := range rep.Unresolved {
		fmt.Fprintf(out, "  unresolved %s:", u.ID)
		for _, f := range u.Reasons {
			fmt.Fprintf(out, " [%s: %s]", f.Source, f.Reason())
		}
		fmt.Fprintln(out)
	}
	return nil
}

// buildSources creates the lookup classes from the URLs that are set. The
// ephemeris class holds the solar-system and satellite sources, the
// stellar class the catalog and imagery sources.
func buildSources(cfg appConfig, logger *slog.Logger) (refresh.Config, error) {
	var out refresh.Config

	if cfg.Sources.EphemerisURL != "" {
		src, err := lookup.NewEphemeris(lookup.EphemerisConfig{
			BaseURL: cfg.Sources.EphemerisURL,
			Epoch:   cfg.Site.Start,
		}, logger)
		if err != nil {
			return out, err
		}
		out.Ephemeris = append(out.Ephemeris, src)
	}

	if len(cfg.Sources.TLEURLs) > 0 {
		var cache *tle.Cache
		if cfg.Sources.TLECacheDir != "" {
			cache = tle.NewCache(cfg.Sources.TLECacheDir, cfg.Sources.TLEMaxFiles)
		}
		src, err := lookup.NewOrbital(lookup.OrbitalConfig{
			Fetcher: tle.NewFetcher(cfg.Sources.TLEURLs[0], logger, cfg.Sources.TLEURLs[1:]...),
			Cache:   cache,
			MaxAge:  cfg.Sources.TLEMaxAge,
			At:      cfg.Site.Start,
		}, logger)
		if err != nil {
			return out, err
		}
		out.Ephemeris = append(out.Ephemeris, src)
	}

	if cfg.Sources.StellarURL != "" {
		src, err := lookup.NewStellar(lookup.StellarConfig{BaseURL: cfg.Sources.StellarURL}, logger)
		if err != nil {
			return out, err
		}
		out.Stellar = append(out.Stellar, src)
	}

	if cfg.Sources.ImageryURL != "" {
		src, err := lookup.NewImagery(lookup.ImageryConfig{
			BaseURL:     cfg.Sources.ImageryURL,
			ArtifactDir: filepath.Clean(cfg.ArtifactDir),
			Params:      cfg.Sources.Imagery,
		}, logger)
		if err != nil {
			return out, err
		}
		out.Stellar = append(out.Stellar, src)
	}

	if len(out.Ephemeris)+len(out.Stellar) == 0 {
		return out, errNoSources
	}
	logger.Info("lookup sources configured",
		"ephemeris_class", out.Ephemeris.Names(),
		"stellar_class", out.Stellar.Names(),
	)
	return out, nil
}
