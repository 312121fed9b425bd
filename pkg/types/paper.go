// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the securipaperbot pipeline.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PaperRecord identifies one paper found on a publisher listing page.
// Records are immutable once created; CanonicalID is the dedup key across
// runs and listings.
type PaperRecord struct {
	// Conference is the registry id of the conference (e.g. "ccs").
	Conference string `json:"conference" yaml:"conference"`

	// Year is the two-digit conference year (e.g. "23").
	Year string `json:"year" yaml:"year"`

	// Title is the paper title as listed by the publisher.
	Title string `json:"title" yaml:"title"`

	// CanonicalID is the publisher-assigned identifier (DOI or equivalent)
	// used to deduplicate the paper.
	CanonicalID string `json:"canonical_id" yaml:"canonical_id"`

	// DetailURL is the paper's landing page on the publisher site.
	DetailURL string `json:"detail_url" yaml:"detail_url"`

	// PDFURL is the resolved direct PDF URL. Empty until resolved.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
}

// CacheKey returns the content-address for the record: the hex sha256 of
// its canonical id.
func (r PaperRecord) CacheKey() string {
	sum := sha256.Sum256([]byte(r.CanonicalID))
	return hex.EncodeToString(sum[:])
}

// Slug returns a filesystem-safe filename stem for the record. When
// sanitizing replaced any characters, a short hash of the original id is
// appended so distinct ids cannot alias the same file (e.g. "a/b" and
// "a-b").
func (r PaperRecord) Slug() string {
	if r.CanonicalID == "" {
		return "unknown"
	}
	safe := strings.NewReplacer("/", "-", ":", "-", " ", "_").Replace(r.CanonicalID)
	if safe == r.CanonicalID {
		return safe
	}
	sum := sha256.Sum256([]byte(r.CanonicalID))
	return safe + "-" + hex.EncodeToString(sum[:4])
}

// RepoLink is a code-repository URL extracted from a paper. A paper may
// yield many links; the link holds a weak reference back to the paper via
// its canonical id.
type RepoLink struct {
	// PaperID is the canonical id of the source paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// URL is the repository URL.
	URL string `json:"url" yaml:"url"`

	// Confidence scores how likely the link points at the paper's own
	// artifact, in [0, 1]. More mentions raise the score.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}
