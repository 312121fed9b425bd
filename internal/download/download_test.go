// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesla/securipaperbot/internal/cache"
	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/internal/ratelimit"
	"github.com/sesla/securipaperbot/pkg/types"
)

const fakePDF = "%PDF-1.4 fake"

// newPDFServer serves fake PDFs under /pdf/ and counts requests. Paths
// under /missing/ return 404.
func newPDFServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pdf/") {
			atomic.AddInt32(hits, 1)
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte(fakePDF))
			return
		}
		http.NotFound(w, r)
	}))
}

func testDownloader(t *testing.T, ts *httptest.Server, workers int, withCache bool) (*Downloader, *cache.Cache) {
	t.Helper()
	dl := types.DownloadConfig{
		Path:                   t.TempDir(),
		MaxRetries:             1,
		MaxConcurrentDownloads: workers,
		UserAgent:              "securipaperbot-test/0.1",
		Timeout:                5 * time.Second,
	}
	sec := types.SecurityConfig{VerifySSL: true, RateLimit: 600000}
	f := fetch.New(dl, sec, ratelimit.New(sec.RateLimit), fetch.WithClient(ts.Client()))

	var c *cache.Cache
	if withCache {
		var err error
		c, err = cache.New(types.CacheConfig{Enabled: true, Path: t.TempDir()}, nil)
		require.NoError(t, err)
		t.Cleanup(c.Close)
	}

	resolve := func(_ context.Context, rec types.PaperRecord) (string, error) {
		return ts.URL + "/pdf/" + rec.Slug() + ".pdf", nil
	}
	return New(f, c, resolve, dl, nil), c
}

func paperRecord(id string) types.PaperRecord {
	return types.PaperRecord{
		Conference:  "ccs",
		Year:        "23",
		Title:       "Paper " + id,
		CanonicalID: id,
		DetailURL:   "https://dl.acm.org/doi/" + id,
	}
}

func TestRunBatchDownloads(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	d, _ := testDownloader(t, ts, 3, true)
	records := []types.PaperRecord{
		paperRecord("10.1145/1"),
		paperRecord("10.1145/2"),
		paperRecord("10.1145/3"),
	}

	var buf bytes.Buffer
	result := d.RunBatch(context.Background(), records, &buf)

	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Total())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Contains(t, buf.String(), "Batch summary: 3 downloaded, 0 cached, 0 failed")

	for _, o := range result.Outcomes {
		data, err := os.ReadFile(o.Path)
		require.NoError(t, err)
		assert.Equal(t, fakePDF, string(data))
	}
}

func TestRunBatchIdempotent(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	d, _ := testDownloader(t, ts, 2, true)
	records := []types.PaperRecord{paperRecord("10.1145/1"), paperRecord("10.1145/2")}

	first := d.RunBatch(context.Background(), records, &bytes.Buffer{})
	require.Equal(t, 2, first.Succeeded)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))

	second := d.RunBatch(context.Background(), records, &bytes.Buffer{})
	assert.Equal(t, 2, second.Cached)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "second run must not hit the network")
}

func TestDuplicateIDsSingleFetch(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	d, _ := testDownloader(t, ts, 8, true)

	// Eight tasks sharing one canonical id: at most one fetch may be in
	// flight, and every task still gets an outcome.
	records := make([]types.PaperRecord, 8)
	for i := range records {
		records[i] = paperRecord("10.1145/shared")
	}

	result := d.RunBatch(context.Background(), records, &bytes.Buffer{})

	assert.Equal(t, 8, result.Total())
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "duplicates must share one execution")
}

func TestRunBatchPartialFailure(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	dl := types.DownloadConfig{
		Path:                   t.TempDir(),
		MaxRetries:             1,
		MaxConcurrentDownloads: 2,
		UserAgent:              "t",
		Timeout:                5 * time.Second,
	}
	sec := types.SecurityConfig{VerifySSL: true, RateLimit: 600000}
	f := fetch.New(dl, sec, ratelimit.New(sec.RateLimit), fetch.WithClient(ts.Client()))

	resolve := func(_ context.Context, rec types.PaperRecord) (string, error) {
		if rec.CanonicalID == "10.1145/gone" {
			return ts.URL + "/missing/gone.pdf", nil
		}
		return ts.URL + "/pdf/" + rec.Slug() + ".pdf", nil
	}
	d := New(f, nil, resolve, dl, nil)

	var buf bytes.Buffer
	result := d.RunBatch(context.Background(), []types.PaperRecord{
		paperRecord("10.1145/ok"),
		paperRecord("10.1145/gone"),
	}, &buf)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.HasFailures())

	for _, o := range result.Outcomes {
		if o.Record.CanonicalID == "10.1145/gone" {
			assert.Equal(t, StateFailed, o.State)
			assert.Equal(t, fetch.KindFatal, o.Kind)
		} else {
			assert.Equal(t, StateSucceeded, o.State)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	d, _ := testDownloader(t, ts, 1, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []types.PaperRecord{paperRecord("10.1145/1"), paperRecord("10.1145/2")}
	result := d.RunBatch(ctx, records, &bytes.Buffer{})

	assert.Equal(t, 2, result.Total(), "every task must report an outcome on cancellation")
	assert.Equal(t, 2, result.Failed)
}

func TestPDFURLSkipsResolver(t *testing.T) {
	var hits int32
	ts := newPDFServer(t, &hits)
	defer ts.Close()

	resolverCalled := false
	dl := types.DownloadConfig{Path: t.TempDir(), MaxRetries: 1, MaxConcurrentDownloads: 1, UserAgent: "t", Timeout: 5 * time.Second}
	sec := types.SecurityConfig{VerifySSL: true, RateLimit: 600000}
	f := fetch.New(dl, sec, ratelimit.New(sec.RateLimit), fetch.WithClient(ts.Client()))
	d := New(f, nil, func(_ context.Context, _ types.PaperRecord) (string, error) {
		resolverCalled = true
		return "", nil
	}, dl, nil)

	rec := paperRecord("10.1145/direct")
	rec.PDFURL = ts.URL + "/pdf/direct.pdf"

	result := d.RunBatch(context.Background(), []types.PaperRecord{rec}, &bytes.Buffer{})
	assert.Equal(t, 1, result.Succeeded)
	assert.False(t, resolverCalled, "records with a PDF URL must not be re-resolved")
}

func TestDestPathLayout(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	d, _ := testDownloader(t, ts, 1, false)
	rec := paperRecord("10.1145/3576915.3616601")

	got := d.destPath(rec)
	want := filepath.Join(d.cfg.Path, "ccs", "23", "10.1145-3576915.3616601-6eb9a70f.pdf")
	assert.Equal(t, want, got)
}

func TestCleanupOld(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	d, _ := testDownloader(t, ts, 1, false)
	d.cfg.CleanupDays = 30

	dir := filepath.Join(d.cfg.Path, "ccs", "23")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	oldPath := filepath.Join(dir, "old.pdf")
	newPath := filepath.Join(dir, "new.pdf")
	require.NoError(t, os.WriteFile(oldPath, []byte(fakePDF), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte(fakePDF), 0o644))

	stale := time.Now().AddDate(0, 0, -60)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	removed, err := d.CleanupOld(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}
