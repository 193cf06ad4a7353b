// Command skywatch keeps a local cache of celestial object metadata and
// reports when each object is observable from a site.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "skywatch",
	Short:         "Celestial object metadata cache and visibility reports",
	Long:          "Skywatch resolves object names against remote catalogs, caches the results on disk and reports where each object sits in the sky over an observation window.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "skywatch:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .skywatch.yaml)")
	rootCmd.PersistentFlags().String("cache-path", "", "object cache snapshot file")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	viper.BindPFlag("cache_path", rootCmd.PersistentFlags().Lookup("cache-path"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	setDefaults(viper.GetViper())

	rootCmd.AddCommand(refreshCmd, reportCmd, serveCmd)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".skywatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("SKYWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "skywatch: reading config:", err)
		}
	}
}

// newLogger builds the JSON logger at the configured level. An unknown
// level falls back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	bad := lvl.UnmarshalText([]byte(level)) != nil
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	if bad && level != "" {
		logger.Warn("invalid log_level value, using default", "value", level, "default", "info")
	}
	return logger
}

// setup loads the configuration and logger for a subcommand.
func setup() (appConfig, *slog.Logger, error) {
	logger := newLogger(viper.GetString("log_level"))
	cfg, err := loadConfig(viper.GetViper(), logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return cfg, logger, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("config file loaded", "path", used)
	}
	return cfg, logger, nil
}
