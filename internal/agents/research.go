// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agents provides the built-in pipeline agents. The analysis
// logic proper is an external capability; these implementations satisfy
// the agent contract so the pipeline runs end to end, and the research
// agent performs the real repository-link extraction.
package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/sesla/securipaperbot/internal/pipeline"
	"github.com/sesla/securipaperbot/pkg/types"
)

// repoLinkPattern matches links to the common code hosting sites inside
// PDF text. PDFs embed URLs as plain bytes often enough for a byte-level
// scan to work without full text extraction.
var repoLinkPattern = regexp.MustCompile(`https?://(?:github\.com|gitlab\.com|bitbucket\.org)/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+`)

// Research extracts code-repository links from fetched paper bytes.
type Research struct{}

func (Research) Name() string { return "research" }

// Invoke scans the paper's bytes for repository URLs, deduplicates them,
// and appends them to the context as RepoLinks. Confidence grows with
// mention count.
func (Research) Invoke(_ context.Context, _ pipeline.Stage, pc *pipeline.Context) (pipeline.Findings, error) {
	if pc.PDF == nil {
		return nil, fmt.Errorf("no document bytes for %s", pc.Record.CanonicalID)
	}

	counts := make(map[string]int)
	for _, m := range repoLinkPattern.FindAll(pc.PDF, -1) {
		counts[normalizeRepoURL(string(m))]++
	}

	urls := make([]string, 0, len(counts))
	for u := range counts {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	for _, u := range urls {
		pc.Links = append(pc.Links, types.RepoLink{
			PaperID:    pc.Record.CanonicalID,
			URL:        u,
			Confidence: confidence(counts[u]),
		})
	}

	return pipeline.Findings{
		"links_found": len(pc.Links),
	}, nil
}

// normalizeRepoURL strips a trailing ".git" and trailing dots picked up
// from sentence punctuation.
func normalizeRepoURL(u string) string {
	for len(u) > 0 && u[len(u)-1] == '.' {
		u = u[:len(u)-1]
	}
	if len(u) > 4 && u[len(u)-4:] == ".git" {
		u = u[:len(u)-4]
	}
	return u
}

// confidence maps mention count to a score in (0, 0.95]. A single mention
// may be a citation; repeated mentions suggest the paper's own artifact.
func confidence(mentions int) float64 {
	score := 0.5 + 0.15*float64(mentions-1)
	if score > 0.95 {
		score = 0.95
	}
	return score
}
