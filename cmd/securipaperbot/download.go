// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sesla/securipaperbot/internal/cache"
	"github.com/sesla/securipaperbot/internal/download"
	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/internal/ratelimit"
	"github.com/sesla/securipaperbot/internal/secrets"
	"github.com/sesla/securipaperbot/internal/sites"
	"github.com/sesla/securipaperbot/internal/store"
	"github.com/sesla/securipaperbot/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download papers for conference years",
	Long: `Download lists papers for the given conferences and years, resolves
their PDF URLs, and fetches them through the cache under the configured
concurrency cap. Already-cached papers are not fetched again.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("conference", "", "conference ids, comma separated (ccs, sp, ndss, usenix)")
	downloadCmd.Flags().String("year", "", "two-digit years, comma separated (e.g. 23,24)")
	downloadCmd.Flags().String("url", "", "override the publisher base URL")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	conferences, years, err := conferenceYearArgs(cmd)
	if err != nil {
		return err
	}
	cfg := loadConfig()
	if baseURL, _ := cmd.Flags().GetString("url"); baseURL != "" {
		for id, conf := range cfg.Conferences {
			conf.BaseURL = baseURL
			cfg.Conferences[id] = conf
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newDownloadEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := env.listRecords(ctx, cfg, conferences, years, os.Stdout)
	if err != nil {
		return err
	}

	result := env.downloader.RunBatch(ctx, records, os.Stdout)
	env.recordOutcomes(ctx, result)

	if result.HasFailures() {
		return fmt.Errorf("%d paper(s) failed download", result.Failed)
	}
	return nil
}

// downloadEnv bundles the wired acquisition components shared by the
// download and analyze commands.
type downloadEnv struct {
	fetcher    *fetch.Fetcher
	cache      *cache.Cache // nil when disabled
	downloader *download.Downloader
	ledger     *store.Store
	logger     *slog.Logger
}

func newDownloadEnv(cfg types.Config) (*downloadEnv, error) {
	logger := slog.Default()

	limiter := ratelimit.New(cfg.Security.RateLimit)
	fetcher := fetch.New(cfg.Download, cfg.Security, limiter,
		fetch.WithHeaders(secrets.Headers(loadedSecrets)),
		fetch.WithLogger(logger))

	var artifactCache *cache.Cache
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
		artifactCache = c
	}

	resolver := func(ctx context.Context, rec types.PaperRecord) (string, error) {
		conf, ok := cfg.Conferences[rec.Conference]
		if !ok {
			return "", fmt.Errorf("unknown conference %q", rec.Conference)
		}
		parser, err := sites.ForConference(conf)
		if err != nil {
			return "", err
		}
		return parser.ResolvePDFURL(ctx, fetcher, rec)
	}

	ledger, err := store.Open(filepath.Join(cfg.Download.Path, ".ledger"))
	if err != nil {
		return nil, err
	}

	return &downloadEnv{
		fetcher:    fetcher,
		cache:      artifactCache,
		downloader: download.New(fetcher, artifactCache, resolver, cfg.Download, logger),
		ledger:     ledger,
		logger:     logger,
	}, nil
}

func (e *downloadEnv) close() {
	if e.cache != nil {
		e.cache.Close()
	}
	e.ledger.Close()
}

// listRecords lists papers for every requested conference/year pair and
// deduplicates by canonical id, keeping the first-seen record.
func (e *downloadEnv) listRecords(ctx context.Context, cfg types.Config, conferences, years []string, w io.Writer) ([]types.PaperRecord, error) {
	seen := make(map[string]bool)
	var records []types.PaperRecord

	for _, id := range conferences {
		conf, ok := cfg.Conferences[id]
		if !ok {
			return nil, fmt.Errorf("unknown conference %q (known: %s)", id, strings.Join(sites.Variants(), ", "))
		}
		parser, err := sites.ForConference(conf)
		if err != nil {
			return nil, err
		}

		for _, year := range years {
			listed, err := parser.ListPapers(ctx, e.fetcher, conf, id, year)
			if err != nil {
				return nil, fmt.Errorf("listing %s 20%s: %w", id, year, err)
			}
			fmt.Fprintf(w, "listed %d papers for %s 20%s\n", len(listed), conf.Name, year)

			for _, rec := range listed {
				if seen[rec.CanonicalID] {
					e.logger.Warn("canonical id collision in listings", "id", rec.CanonicalID, "dropped", rec.DetailURL)
					continue
				}
				seen[rec.CanonicalID] = true
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// recordOutcomes writes batch results into the run ledger.
func (e *downloadEnv) recordOutcomes(ctx context.Context, result download.BatchResult) {
	for _, o := range result.Outcomes {
		collided, err := e.ledger.RecordPaper(ctx, o.Record, o.Path)
		if err != nil {
			e.logger.Warn("ledger paper write failed", "id", o.Record.CanonicalID, "err", err)
			continue
		}
		if collided {
			e.logger.Warn("canonical id collision in ledger", "id", o.Record.CanonicalID)
		}
		kind := ""
		if o.Err != nil {
			kind = o.Kind.String()
		}
		if err := e.ledger.RecordDownload(ctx, o.Record.CanonicalID, o.State.String(), o.Attempts, kind); err != nil {
			e.logger.Warn("ledger download write failed", "id", o.Record.CanonicalID, "err", err)
		}
	}
}

// conferenceYearArgs parses the shared --conference and --year flags.
func conferenceYearArgs(cmd *cobra.Command) (conferences, years []string, err error) {
	confFlag, _ := cmd.Flags().GetString("conference")
	yearFlag, _ := cmd.Flags().GetString("year")
	if confFlag == "" || yearFlag == "" {
		return nil, nil, fmt.Errorf("both --conference and --year are required")
	}
	return splitList(confFlag), splitList(yearFlag), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
