// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package download drives a bounded worker pool that fetches paper PDFs
// through the cache, the rate limiter, and the retry policy, and streams
// per-task outcomes back to the caller.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sesla/securipaperbot/internal/cache"
	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// Resolver turns a paper record into a direct PDF URL. Site parsers
// provide this; resolution may itself hit the network through the fetcher.
type Resolver func(ctx context.Context, rec types.PaperRecord) (string, error)

// Downloader coordinates the fetcher, the cache, and a resolver to
// download a batch of papers under a concurrency cap.
type Downloader struct {
	fetcher *fetch.Fetcher
	cache   *cache.Cache // nil when caching is disabled
	resolve Resolver
	cfg     types.DownloadConfig
	logger  *slog.Logger

	flight singleflight.Group
}

// New builds a Downloader. cache may be nil to disable caching.
func New(f *fetch.Fetcher, c *cache.Cache, resolve Resolver, cfg types.DownloadConfig, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		fetcher: f,
		cache:   c,
		resolve: resolve,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run schedules one task per record on a worker pool of
// MaxConcurrentDownloads and returns a channel of outcomes in completion
// order. Individual failures never abort the batch. On context
// cancellation, pending tasks are not started and report Failed; tasks
// already in flight run to completion or time out on the per-request
// timeout.
func (d *Downloader) Run(ctx context.Context, records []types.PaperRecord) <-chan Outcome {
	out := make(chan Outcome)

	go func() {
		defer close(out)

		workers := d.cfg.MaxConcurrentDownloads
		if workers <= 0 {
			workers = 1
		}

		var g errgroup.Group
		g.SetLimit(workers)

		for _, rec := range records {
			if ctx.Err() != nil {
				out <- Outcome{
					Record: rec,
					State:  StateFailed,
					Err:    ctx.Err(),
					Kind:   fetch.KindFatal,
				}
				continue
			}
			rec := rec
			g.Go(func() error {
				out <- d.process(ctx, rec)
				return nil
			})
		}
		g.Wait()
	}()

	return out
}

// RunBatch drains Run, writing one progress line per terminal state to w,
// and returns the batch summary.
func (d *Downloader) RunBatch(ctx context.Context, records []types.PaperRecord, w io.Writer) BatchResult {
	var result BatchResult
	for o := range d.Run(ctx, records) {
		o.report(w)
		result.add(o)
	}
	fmt.Fprintf(w, "\nBatch summary: %d downloaded, %d cached, %d failed (total: %d)\n",
		result.Succeeded, result.Cached, result.Failed, result.Total())
	return result
}

// process executes one task. Duplicate canonical ids submitted
// concurrently share a single execution via singleflight, so at most one
// network fetch is in flight per id; every duplicate still receives an
// outcome.
func (d *Downloader) process(ctx context.Context, rec types.PaperRecord) Outcome {
	v, err, shared := d.flight.Do(rec.CanonicalID, func() (interface{}, error) {
		return d.fetchOne(ctx, rec), nil
	})
	if err != nil {
		return Outcome{Record: rec, State: StateFailed, Err: err, Kind: fetch.KindOf(err)}
	}

	o := v.(Outcome)
	if shared && o.Record.DetailURL != rec.DetailURL {
		// Cross-listing collision: the first-seen record stays canonical.
		d.logger.Warn("canonical id collision",
			"id", rec.CanonicalID,
			"kept", o.Record.DetailURL,
			"dropped", rec.DetailURL)
	}
	return o
}

func (d *Downloader) fetchOne(ctx context.Context, rec types.PaperRecord) Outcome {
	dest := d.destPath(rec)

	// Cache first: a hit skips the network entirely.
	if d.cache != nil {
		if data, err := d.cache.Get(rec.CacheKey()); err == nil {
			if err := d.mirror(dest, data); err != nil {
				return Outcome{Record: rec, State: StateFailed, Err: err, Kind: fetch.KindCacheIO}
			}
			return Outcome{Record: rec, State: StateCached, Path: dest}
		}
	}

	pdfURL := rec.PDFURL
	if pdfURL == "" {
		resolved, err := d.resolve(ctx, rec)
		if err != nil {
			return Outcome{Record: rec, State: StateFailed, Err: err, Kind: kindOrFatal(err)}
		}
		pdfURL = resolved
		rec.PDFURL = resolved
	}

	body, attempts, err := d.fetcher.Get(ctx, pdfURL)
	if err != nil {
		return Outcome{Record: rec, State: StateFailed, Attempts: attempts, Err: err, Kind: kindOrFatal(err)}
	}

	if d.cache != nil {
		if err := d.cache.Put(rec.CacheKey(), body); err != nil {
			return Outcome{Record: rec, State: StateFailed, Attempts: attempts, Err: err, Kind: fetch.KindCacheIO}
		}
	}
	if err := d.mirror(dest, body); err != nil {
		return Outcome{Record: rec, State: StateFailed, Attempts: attempts, Err: err, Kind: fetch.KindCacheIO}
	}

	return Outcome{Record: rec, State: StateSucceeded, Attempts: attempts, Path: dest}
}

// destPath mirrors the conference/year/paper-id hierarchy under the
// download path.
func (d *Downloader) destPath(rec types.PaperRecord) string {
	return filepath.Join(d.cfg.Path, rec.Conference, rec.Year, rec.Slug()+".pdf")
}

// mirror writes data to dest via temp file and rename, creating parent
// directories. Existing files are left untouched.
func (d *Downloader) mirror(dest string, data []byte) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fetch.CacheIO("create download dir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.tmp")
	if err != nil {
		return fetch.CacheIO("create temp file", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fetch.CacheIO("write download", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fetch.CacheIO("close temp file", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fetch.CacheIO("rename temp file", err)
	}
	return nil
}

// CleanupOld removes downloaded PDFs older than the configured
// cleanup_days. Returns the number of files removed.
func (d *Downloader) CleanupOld(now time.Time) (int, error) {
	if d.cfg.CleanupDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -d.cfg.CleanupDays)

	removed := 0
	err := filepath.WalkDir(d.cfg.Path, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() || filepath.Ext(path) != ".pdf" {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
				d.logger.Info("removed old download", "path", path)
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return removed, nil
	}
	return removed, err
}

// kindOrFatal returns the taxonomy kind of err, defaulting untyped errors
// to fatal so they are never retried upstream.
func kindOrFatal(err error) fetch.Kind {
	if k := fetch.KindOf(err); k != fetch.KindUnknown {
		return k
	}
	return fetch.KindFatal
}
