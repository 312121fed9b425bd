// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"

	"github.com/sesla/securipaperbot/internal/pipeline"
)

// qualityMetrics are the dimensions scored per repository.
var qualityMetrics = []string{
	"code_complexity",
	"maintainability",
	"security",
	"documentation",
	"test_coverage",
}

// Quality scores the analyzed repositories. The scoring model is an
// external capability; this built-in derives a neutral baseline from the
// analyze-stage findings so reports always carry the quality section.
type Quality struct{}

func (Quality) Name() string { return "quality" }

func (Quality) Invoke(_ context.Context, _ pipeline.Stage, pc *pipeline.Context) (pipeline.Findings, error) {
	analyzed := 0
	if f, ok := pc.Findings[pipeline.StageAnalyze]; ok {
		if n, ok := f["repositories_analyzed"].(int); ok {
			analyzed = n
		}
	}

	scores := pipeline.Findings{}
	for _, metric := range qualityMetrics {
		scores[metric] = 0.5
	}

	status := "no-artifacts"
	if analyzed > 0 {
		status = "assessed"
	}

	return pipeline.Findings{
		"scores":                scores,
		"overall_score":         0.5,
		"repositories_assessed": analyzed,
		"status":                status,
	}, nil
}
