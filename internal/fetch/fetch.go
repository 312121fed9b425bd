// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sesla/securipaperbot/internal/ratelimit"
	"github.com/sesla/securipaperbot/pkg/types"
)

// Fetcher performs allow-listed, rate-limited, retrying GETs.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	allowed map[string]struct{}
	policy  Policy

	userAgent string
	headers   map[string]string // extra credential headers, name -> value
	logger    *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHeaders adds credential headers sent with every request.
func WithHeaders(h map[string]string) Option {
	return func(f *Fetcher) { f.headers = h }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithClient substitutes the HTTP client. Tests use this to point the
// fetcher at httptest servers.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New builds a Fetcher from the download and security configuration.
func New(dl types.DownloadConfig, sec types.SecurityConfig, limiter *ratelimit.Limiter, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !sec.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   dl.Timeout,
			Transport: transport,
		},
		limiter:   limiter,
		allowed:   make(map[string]struct{}, len(sec.AllowedDomains)),
		policy:    Policy{MaxRetries: dl.MaxRetries, Delay: dl.RetryDelay},
		userAgent: dl.UserAgent,
		logger:    slog.Default(),
	}
	for _, d := range sec.AllowedDomains {
		f.allowed[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CheckDomain rejects URLs whose host is outside the allow-list. An empty
// allow-list permits everything. The check runs before any network call.
func (f *Fetcher) CheckDomain(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Fatal("parse url", err)
	}
	if len(f.allowed) == 0 {
		return nil
	}
	if _, ok := f.allowed[u.Hostname()]; !ok {
		return Fatal("check domain", fmt.Errorf("%w: %s", ErrDisallowedDomain, u.Hostname()))
	}
	return nil
}

// Get fetches rawURL and returns the response body. It checks the domain
// allow-list, waits for a rate-limit token, and retries transient failures
// per the policy. The attempt count of the final outcome is returned for
// observability.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (body []byte, attempts int, err error) {
	if err := f.CheckDomain(rawURL); err != nil {
		return nil, 0, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, Fatal("parse url", err)
	}
	domain := u.Hostname()

	attempts, err = Do(ctx, f.policy, func() error {
		if err := f.limiter.Wait(ctx, domain); err != nil {
			return err
		}
		data, reqErr := f.get(ctx, rawURL)
		if reqErr != nil {
			return reqErr
		}
		body = data
		return nil
	})
	if err != nil {
		f.logger.Warn("fetch failed", "url", rawURL, "attempts", attempts, "kind", KindOf(err).String(), "err", err)
		return nil, attempts, err
	}
	return body, attempts, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Fatal("create request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for name, value := range f.headers {
		req.Header.Set(name, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport("GET "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, classifyStatus("GET "+rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("read body", err)
	}
	return data, nil
}
