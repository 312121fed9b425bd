// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the analysis stages for each paper and
// carries per-paper state through them.
package pipeline

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/sesla/securipaperbot/pkg/types"
)

// Stage names one pipeline stage.
type Stage string

const (
	StageFetch         Stage = "fetch"
	StageExtractLinks  Stage = "extract-links"
	StageAnalyze       Stage = "analyze"
	StageAssessQuality Stage = "assess-quality"
	StageDocument      Stage = "document"
)

// State is the per-paper position in the pipeline state machine.
type State string

const (
	StateFetching       State = "fetching"
	StateLinksExtracted State = "links-extracted"
	StateAnalyzing      State = "analyzing"
	StateAssessed       State = "assessed"
	StateDocumented     State = "documented"
	StateDone           State = "done"
	StateErrored        State = "errored"
)

// Findings is the structured output of one agent invocation. The
// coordinator threads findings forward without interpreting their content.
type Findings map[string]interface{}

// Context is the per-paper accumulator threaded through stages. Stages for
// one paper run strictly sequentially, so Context is never mutated
// concurrently; distinct papers each have their own Context.
type Context struct {
	Record types.PaperRecord `json:"record"`

	// PDFPath is the local PDF location after the fetch stage.
	PDFPath string `json:"pdf_path,omitempty"`

	// PDF holds the document bytes for agents that read content. Not
	// serialized.
	PDF []byte `json:"-"`

	// Links are the repository links extracted by the research stage.
	Links []types.RepoLink `json:"links,omitempty"`

	// Link is set on the fan-out copy handed to each per-repository
	// analyze invocation; nil otherwise.
	Link *types.RepoLink `json:"-"`

	State State `json:"state"`

	// Findings accumulates each stage's typed output.
	Findings map[Stage]Findings `json:"findings"`

	// StageErrors records failed stages; the paper still reaches the
	// document stage with the failed sections flagged absent.
	StageErrors map[Stage]string `json:"stage_errors,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewContext starts an accumulator for one paper.
func NewContext(rec types.PaperRecord) *Context {
	return &Context{
		Record:      rec,
		State:       StateFetching,
		Findings:    make(map[Stage]Findings),
		StageErrors: make(map[Stage]string),
		StartedAt:   time.Now(),
	}
}

// recordFindings appends a stage's findings.
func (c *Context) recordFindings(stage Stage, f Findings) {
	if f != nil {
		c.Findings[stage] = f
	}
}

// recordError marks a stage failed and moves the paper to the errored
// state. The partial context remains usable downstream.
func (c *Context) recordError(stage Stage, err error) {
	c.StageErrors[stage] = err.Error()
	c.State = StateErrored
}

// Errored reports whether any stage failed.
func (c *Context) Errored() bool {
	return len(c.StageErrors) > 0
}

// fanOutCopy returns an independent copy of the context for one
// per-repository analyze invocation, with Link pointing at the i-th
// extracted link. The maps and the link slice are cloned, so an agent that
// writes through its context cannot race a sibling or reach the parent.
func (c *Context) fanOutCopy(i int) *Context {
	child := *c
	child.Findings = maps.Clone(c.Findings)
	child.StageErrors = maps.Clone(c.StageErrors)
	child.Links = slices.Clone(c.Links)
	child.Link = &child.Links[i]
	return &child
}

// Save writes the context as JSON under dir, one file per paper.
func (c *Context) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, c.Record.Slug()+".json"), data, 0o644)
}
