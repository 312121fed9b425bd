// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sesla/securipaperbot/internal/pipeline"
)

// reportSections maps output section names to the stage whose findings
// populate them.
var reportSections = []struct {
	name  string
	stage pipeline.Stage
}{
	{"research", pipeline.StageExtractLinks},
	{"code_analysis", pipeline.StageAnalyze},
	{"quality_assessment", pipeline.StageAssessQuality},
}

// Documentation assembles the per-paper report from whatever findings the
// earlier stages produced. Sections whose stage failed or never ran are
// listed as absent rather than dropped, so errored papers still document.
type Documentation struct {
	// Format is the output format; empty means markdown.
	Format string
}

func (Documentation) Name() string { return "documentation" }

func (d Documentation) Invoke(_ context.Context, _ pipeline.Stage, pc *pipeline.Context) (pipeline.Findings, error) {
	format := d.Format
	if format == "" {
		format = "markdown"
	}

	var present, absent []string
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", pc.Record.Title)
	fmt.Fprintf(&b, "Conference: %s 20%s  \nCanonical id: %s\n\n", pc.Record.Conference, pc.Record.Year, pc.Record.CanonicalID)

	for _, section := range reportSections {
		fmt.Fprintf(&b, "## %s\n\n", section.name)
		findings, ok := pc.Findings[section.stage]
		if !ok {
			absent = append(absent, section.name)
			reason := "stage did not run"
			if msg, failed := pc.StageErrors[section.stage]; failed {
				reason = msg
			}
			fmt.Fprintf(&b, "_Section absent: %s_\n\n", reason)
			continue
		}
		present = append(present, section.name)
		keys := make([]string, 0, len(findings))
		for key := range findings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", key, findings[key])
		}
		b.WriteString("\n")
	}

	return pipeline.Findings{
		"format":   format,
		"sections": present,
		"absent":   absent,
		"content":  b.String(),
	}, nil
}
