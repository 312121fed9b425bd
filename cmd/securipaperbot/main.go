// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the securipaperbot CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sesla/securipaperbot/internal/secrets"
	"github.com/sesla/securipaperbot/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds publisher credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the securipaperbot CLI.
var rootCmd = &cobra.Command{
	Use:   "securipaperbot",
	Short: "Security-conference paper acquisition and analysis",
	Long: `securipaperbot downloads papers from security-conference publishers
(CCS, IEEE S&P, NDSS, USENIX Security), extracts embedded code-repository
links, and runs a staged analysis pipeline over them.

Acquisition is concurrent, rate-limited per domain, retried with backoff,
and backed by a bounded on-disk cache, so re-running a batch is safe and
cheap.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd)

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./securipaperbot.yaml or ~/.config/securipaperbot/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("securipaperbot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "securipaperbot"))
		}
	}

	viper.SetEnvPrefix("SECURIPAPERBOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig overlays the viper-read config file onto the defaults.
func loadConfig() types.Config {
	cfg := types.DefaultConfig()

	setString := func(dst *string, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt := func(dst *int, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}

	setString(&cfg.Download.Path, "download.path")
	setInt(&cfg.Download.MaxRetries, "download.max_retries")
	if viper.IsSet("download.retry_delay") {
		cfg.Download.RetryDelay = viper.GetDuration("download.retry_delay")
	}
	setInt(&cfg.Download.MaxConcurrentDownloads, "download.max_concurrent_downloads")
	setInt(&cfg.Download.CleanupDays, "download.cleanup_days")
	setString(&cfg.Download.UserAgent, "download.user_agent")
	if viper.IsSet("download.timeout") {
		cfg.Download.Timeout = viper.GetDuration("download.timeout")
	}

	if viper.IsSet("security.verify_ssl") {
		cfg.Security.VerifySSL = viper.GetBool("security.verify_ssl")
	}
	setInt(&cfg.Security.RateLimit, "security.rate_limit")
	if viper.IsSet("security.allowed_domains") {
		cfg.Security.AllowedDomains = viper.GetStringSlice("security.allowed_domains")
	}

	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	setString(&cfg.Cache.Path, "cache.path")
	if viper.IsSet("cache.max_size") {
		cfg.Cache.MaxSize = viper.GetInt64("cache.max_size")
	}
	if viper.IsSet("cache.ttl") {
		cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	}
	if viper.IsSet("cache.cleanup_interval") {
		cfg.Cache.CleanupInterval = viper.GetDuration("cache.cleanup_interval")
	}

	setString(&cfg.Output.Path, "output.path")
	setString(&cfg.Output.Format, "output.format")

	for id := range viper.GetStringMap("conferences") {
		sub := viper.Sub("conferences." + id)
		if sub == nil {
			continue
		}
		conf := cfg.Conferences[id]
		if sub.IsSet("name") {
			conf.Name = sub.GetString("name")
		}
		if sub.IsSet("base_url") {
			conf.BaseURL = sub.GetString("base_url")
		}
		if sub.IsSet("parser") {
			conf.Parser = sub.GetString("parser")
		}
		cfg.Conferences[id] = conf
	}

	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
