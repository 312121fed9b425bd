package types

import "time"

// ConferenceConfig describes one publisher in the conference registry.
type ConferenceConfig struct {
	// Name is the display name (e.g. "ACM CCS").
	Name string `json:"name" yaml:"name"`

	// BaseURL is the publisher listing root for the conference.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Parser selects the site parser variant: ccs, sp, ndss, or usenix.
	Parser string `json:"parser" yaml:"parser"`
}

// DownloadConfig holds settings for the download stage.
type DownloadConfig struct {
	// Path is the base directory for downloaded PDFs, laid out as
	// path/conference/year/paper-id.pdf.
	Path string `json:"path" yaml:"path"`

	// MaxRetries is the number of retry attempts for transient failures
	// (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base delay for linear backoff; attempt n waits
	// RetryDelay * n (default 5s).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// MaxConcurrentDownloads caps the download worker pool (default 5).
	MaxConcurrentDownloads int `json:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`

	// CleanupDays removes downloaded files older than this many days when
	// cleanup runs (default 30).
	CleanupDays int `json:"cleanup_days" yaml:"cleanup_days"`

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Timeout is the per-request HTTP timeout (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// SecurityConfig holds network policy settings.
type SecurityConfig struct {
	// VerifySSL controls TLS certificate verification.
	VerifySSL bool `json:"verify_ssl" yaml:"verify_ssl"`

	// RateLimit is the per-domain request budget in requests per minute
	// (default 30).
	RateLimit int `json:"rate_limit" yaml:"rate_limit"`

	// AllowedDomains is the outbound allow-list. Requests to hosts outside
	// this set are rejected before dispatch. Empty means allow all.
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"`
}

// CacheConfig holds settings for the on-disk artifact cache.
type CacheConfig struct {
	// Enabled turns the cache on. When false every fetch goes to the network.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the cache directory.
	Path string `json:"path" yaml:"path"`

	// MaxSize bounds the total bytes on disk across all entries.
	MaxSize int64 `json:"max_size" yaml:"max_size"`

	// TTL is the entry lifetime; expired entries are treated as misses.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// CleanupInterval is the period of the background sweep.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// OutputConfig holds settings for pipeline result output.
type OutputConfig struct {
	// Path is the directory for pipeline context and report files.
	Path string `json:"path" yaml:"path"`

	// Format selects the documentation output format (default "markdown").
	Format string `json:"format" yaml:"format"`
}

// Config groups all component configurations.
type Config struct {
	Conferences map[string]ConferenceConfig `json:"conferences" yaml:"conferences"`
	Download    DownloadConfig              `json:"download" yaml:"download"`
	Security    SecurityConfig              `json:"security" yaml:"security"`
	Cache       CacheConfig                 `json:"cache" yaml:"cache"`
	Output      OutputConfig                `json:"output" yaml:"output"`
}

// DefaultConferences returns the built-in conference registry.
func DefaultConferences() map[string]ConferenceConfig {
	return map[string]ConferenceConfig{
		"ccs": {
			Name:    "ACM CCS",
			BaseURL: "https://dl.acm.org/doi/proceedings/10.1145",
			Parser:  "ccs",
		},
		"sp": {
			Name:    "IEEE S&P",
			BaseURL: "https://ieeexplore.ieee.org/xpl/conhome",
			Parser:  "sp",
		},
		"ndss": {
			Name:    "NDSS",
			BaseURL: "https://www.ndss-symposium.org",
			Parser:  "ndss",
		},
		"usenix": {
			Name:    "USENIX Security",
			BaseURL: "https://www.usenix.org/conference",
			Parser:  "usenix",
		},
	}
}

// DefaultConfig returns a Config populated with defaults. Callers overlay
// file and flag values on top.
func DefaultConfig() Config {
	return Config{
		Conferences: DefaultConferences(),
		Download: DownloadConfig{
			Path:                   "papers",
			MaxRetries:             3,
			RetryDelay:             5 * time.Second,
			MaxConcurrentDownloads: 5,
			CleanupDays:            30,
			UserAgent:              "securipaperbot/0.1",
			Timeout:                60 * time.Second,
		},
		Security: SecurityConfig{
			VerifySSL: true,
			RateLimit: 30,
			AllowedDomains: []string{
				"dl.acm.org",
				"ieeexplore.ieee.org",
				"www.ndss-symposium.org",
				"www.usenix.org",
			},
		},
		Cache: CacheConfig{
			Enabled:         true,
			Path:            "cache",
			MaxSize:         1 << 30, // 1 GiB
			TTL:             7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Output: OutputConfig{
			Path:   "output",
			Format: "markdown",
		},
	}
}
