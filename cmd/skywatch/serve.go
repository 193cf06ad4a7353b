package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/star/skywatch/internal/api"
	"github.com/star/skywatch/internal/objcache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cached objects and their windows as JSON",
	Long:  "Serve exposes the cache over HTTP and reloads it whenever a refresh replaces the snapshot file.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	viper.BindPFlag("http_addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	store := objcache.Open(cfg.CachePath, logger)
	cat := api.NewCatalog(store, cfg.siteAt, logger)
	if err := cat.Reload(); err != nil {
		// Serve anyway; /readyz reports 503 until a good snapshot appears.
		logger.Warn("initial snapshot load failed", "error", err)
	}

	watcher, err := cat.Watch()
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Config{
		Addr:               cfg.HTTPAddr,
		Auth:               cfg.Auth,
		TrustProxy:         cfg.TrustProxy,
		MaxConcurrentPerIP: cfg.MaxPerIP,
	}, cat, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled, "cache_path", cfg.CachePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.HTTPServer().Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
