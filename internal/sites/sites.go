// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sites parses publisher listing pages into paper records and
// resolves PDF URLs. Each supported conference has one Parser variant in a
// fixed registry; adding a conference means adding one variant.
package sites

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// ErrPDFNotFound is returned by ResolvePDFURL when a paper's detail page
// carries no PDF link.
var ErrPDFNotFound = errors.New("no PDF link found")

// Parser lists papers for one publisher and resolves their PDF URLs.
// ListPapers performs one pass over the listing page per call; re-listing
// re-issues the request.
type Parser interface {
	// Variant returns the registry name of the parser.
	Variant() string

	// ListPapers fetches the listing page for a conference year and
	// returns the candidate records. A page that does not match the
	// expected structure yields a parse error (KindParse, non-retryable).
	ListPapers(ctx context.Context, f *fetch.Fetcher, cfg types.ConferenceConfig, conference, year string) ([]types.PaperRecord, error)

	// ResolvePDFURL resolves the direct PDF URL for a record, fetching
	// the detail page when the publisher does not expose a stable URL
	// pattern. Returns ErrPDFNotFound when no link exists.
	ResolvePDFURL(ctx context.Context, f *fetch.Fetcher, rec types.PaperRecord) (string, error)
}

// registry is the fixed parser table. Lookup is by the conference config's
// parser field; there is no dynamic dispatch beyond this map.
var registry = map[string]Parser{
	"ccs":    &ccsParser{},
	"sp":     &spParser{},
	"ndss":   &ndssParser{},
	"usenix": &usenixParser{},
}

// ForConference returns the parser variant named by cfg.Parser.
func ForConference(cfg types.ConferenceConfig) (Parser, error) {
	p, ok := registry[cfg.Parser]
	if !ok {
		return nil, fmt.Errorf("unsupported parser variant %q", cfg.Parser)
	}
	return p, nil
}

// Variants returns the registered parser names.
func Variants() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// parseDocument builds a goquery document from fetched listing bytes.
func parseDocument(op string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fetch.ParseFailure(op, err)
	}
	return doc, nil
}
