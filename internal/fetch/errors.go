// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch classifies network failures and wraps outbound requests
// with the domain allow-list, the per-domain rate limiter, and bounded
// retries with linear backoff.
package fetch

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a pipeline error for retry and reporting decisions.
type Kind int

const (
	// KindUnknown is the zero value for errors produced outside the taxonomy.
	KindUnknown Kind = iota

	// KindTransient marks retryable network failures: timeouts, 5xx
	// responses, connection resets.
	KindTransient

	// KindFatal marks non-retryable fetch failures: 404, SSL verification
	// failure, disallowed domain.
	KindFatal

	// KindParse marks a publisher page that no longer matches the expected
	// structure. Not retryable; needs operator attention.
	KindParse

	// KindCacheIO marks a cache disk failure. Fatal to the task, does not
	// corrupt other entries.
	KindCacheIO

	// KindStage marks a failed agent invocation. Isolates to one paper.
	KindStage
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindParse:
		return "parse"
	case KindCacheIO:
		return "cache-io"
	case KindStage:
		return "stage"
	default:
		return "unknown"
	}
}

// ErrDisallowedDomain is returned before dispatch when a request targets a
// host outside the configured allow-list.
var ErrDisallowedDomain = errors.New("domain not in allow-list")

// Error wraps an underlying failure with its taxonomy kind and the
// operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// ParseFailure wraps err as a publisher layout mismatch.
func ParseFailure(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// CacheIO wraps err as a cache disk failure.
func CacheIO(op string, err error) *Error {
	return &Error{Kind: KindCacheIO, Op: op, Err: err}
}

// Stage wraps err as an agent invocation failure.
func Stage(op string, err error) *Error {
	return &Error{Kind: KindStage, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, or KindUnknown when err was not
// produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// classifyTransport maps a transport-level error to the taxonomy. TLS
// certificate failures are fatal when verification is required; context
// cancellation passes through untouched so callers can distinguish it;
// everything else on the wire is transient.
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var certErr *x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) {
		return Fatal(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(op, err)
	}
	return Transient(op, err)
}

// classifyStatus maps an HTTP status code to the taxonomy. 5xx and 429 are
// transient; everything else non-2xx is fatal.
func classifyStatus(op string, code int) error {
	err := fmt.Errorf("HTTP %d", code)
	if code >= 500 || code == http.StatusTooManyRequests {
		return Transient(op, err)
	}
	return Fatal(op, err)
}
