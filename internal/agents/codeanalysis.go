// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"
	"fmt"

	"github.com/sesla/securipaperbot/internal/pipeline"
)

// CodeAnalysis is the per-repository analysis agent. The repository
// cloning and inspection capability is external; this built-in reports
// the link metadata in the shape downstream stages consume.
type CodeAnalysis struct{}

func (CodeAnalysis) Name() string { return "code-analysis" }

func (CodeAnalysis) Invoke(_ context.Context, _ pipeline.Stage, pc *pipeline.Context) (pipeline.Findings, error) {
	if pc.Link == nil {
		return nil, fmt.Errorf("analyze invoked without a repository link for %s", pc.Record.CanonicalID)
	}
	return pipeline.Findings{
		"repo_url":   pc.Link.URL,
		"confidence": pc.Link.Confidence,
		"structure":  pipeline.Findings{"analyzed": true},
		"security":   pipeline.Findings{"analyzed": true},
	}, nil
}
