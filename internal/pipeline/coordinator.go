// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sesla/securipaperbot/internal/cache"
	"github.com/sesla/securipaperbot/internal/download"
	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// Coordinator sequences the pipeline stages for each paper. Distinct
// papers run concurrently; within one paper the stage order is fixed. A
// failed stage moves the paper to the errored state but the document
// stage still runs on the partial context, flagging missing sections.
type Coordinator struct {
	downloader *download.Downloader
	cache      *cache.Cache // nil when caching is disabled
	agents     Agents
	outputDir  string
	logger     *slog.Logger
}

// NewCoordinator wires the downloader and agents into a coordinator.
func NewCoordinator(d *download.Downloader, c *cache.Cache, agents Agents, out types.OutputConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		downloader: d,
		cache:      c,
		agents:     agents,
		outputDir:  out.Path,
		logger:     logger,
	}
}

// Summary reports the outcome of one pipeline run.
type Summary struct {
	Papers        int
	Documented    int
	Errored       int
	ReposAnalyzed int
	Elapsed       time.Duration
}

// ProcessPapers runs the full pipeline for a record set: the fetch stage
// through the shared downloader, then the per-paper stage sequence as each
// fetch completes. The returned contexts are in completion order.
func (co *Coordinator) ProcessPapers(ctx context.Context, records []types.PaperRecord, w io.Writer) (Summary, []*Context, error) {
	start := time.Now()

	var g errgroup.Group
	results := make(chan *Context, len(records))

	for outcome := range co.downloader.Run(ctx, records) {
		outcome := outcome
		g.Go(func() error {
			results <- co.processPaper(ctx, outcome, w)
			return nil
		})
	}

	g.Wait()
	close(results)

	var summary Summary
	var contexts []*Context
	for pc := range results {
		contexts = append(contexts, pc)
		summary.Papers++
		summary.ReposAnalyzed += len(pc.Links)
		if pc.Errored() {
			summary.Errored++
		}
		if pc.State == StateDone || pc.State == StateDocumented {
			summary.Documented++
		}
	}
	summary.Elapsed = time.Since(start)

	fmt.Fprintf(w, "\nPipeline summary: %d papers, %d documented, %d errored, %d repositories analyzed (%.1fs)\n",
		summary.Papers, summary.Documented, summary.Errored, summary.ReposAnalyzed, summary.Elapsed.Seconds())
	return summary, contexts, nil
}

// processPaper drives one paper through the stage sequence.
func (co *Coordinator) processPaper(ctx context.Context, outcome download.Outcome, w io.Writer) *Context {
	pc := NewContext(outcome.Record)

	co.runFetchStage(pc, outcome)
	if _, failed := pc.StageErrors[StageFetch]; !failed {
		co.runExtractStage(ctx, pc)
		co.runAnalyzeStage(ctx, pc)
		co.runQualityStage(ctx, pc)
	}
	co.runDocumentStage(ctx, pc)

	pc.FinishedAt = time.Now()
	if !pc.Errored() {
		pc.State = StateDone
	}

	if err := pc.Save(co.outputDir); err != nil {
		co.logger.Warn("context save failed", "paper", pc.Record.CanonicalID, "err", err)
	}
	fmt.Fprintf(w, "paper %s: %s\n", pc.Record.CanonicalID, pc.State)
	return pc
}

// runFetchStage folds the download outcome into the context and loads the
// document bytes for downstream agents.
func (co *Coordinator) runFetchStage(pc *Context, outcome download.Outcome) {
	if outcome.State == download.StateFailed {
		pc.recordError(StageFetch, outcome.Err)
		return
	}
	pc.PDFPath = outcome.Path

	if co.cache != nil {
		if data, err := co.cache.Get(pc.Record.CacheKey()); err == nil {
			pc.PDF = data
		}
	}
	if pc.PDF == nil && outcome.Path != "" {
		data, err := os.ReadFile(outcome.Path)
		if err != nil {
			pc.recordError(StageFetch, fetch.CacheIO("read fetched pdf", err))
			return
		}
		pc.PDF = data
	}

	pc.recordFindings(StageFetch, Findings{
		"state":    outcome.State.String(),
		"attempts": outcome.Attempts,
		"path":     outcome.Path,
	})
	pc.State = StateFetching
}

func (co *Coordinator) runExtractStage(ctx context.Context, pc *Context) {
	findings, err := co.agents.Research.Invoke(ctx, StageExtractLinks, pc)
	if err != nil {
		pc.recordError(StageExtractLinks, fetch.Stage(string(StageExtractLinks), err))
		return
	}
	pc.recordFindings(StageExtractLinks, findings)
	pc.State = StateLinksExtracted
}

// runAnalyzeStage fans out one code-analysis invocation per extracted
// repository link and joins all children before advancing. Each child gets
// an independent copy of the context with Link set, so the shared
// accumulator is never mutated concurrently.
func (co *Coordinator) runAnalyzeStage(ctx context.Context, pc *Context) {
	if _, failed := pc.StageErrors[StageExtractLinks]; failed {
		return
	}
	pc.State = StateAnalyzing

	if len(pc.Links) == 0 {
		pc.recordFindings(StageAnalyze, Findings{"repositories_analyzed": 0})
		return
	}

	type repoResult struct {
		findings Findings
		err      error
	}
	results := make([]repoResult, len(pc.Links))

	var g errgroup.Group
	for i := range pc.Links {
		i := i
		g.Go(func() error {
			f, err := co.agents.CodeAnalysis.Invoke(ctx, StageAnalyze, pc.fanOutCopy(i))
			results[i] = repoResult{findings: f, err: err}
			return nil
		})
	}
	g.Wait()

	merged := Findings{}
	var repos []Findings
	failures := 0
	for i, r := range results {
		if r.err != nil {
			failures++
			co.logger.Warn("repository analysis failed",
				"paper", pc.Record.CanonicalID, "repo", pc.Links[i].URL, "err", r.err)
			continue
		}
		repos = append(repos, r.findings)
	}
	merged["repositories_analyzed"] = len(repos)
	merged["repositories_failed"] = failures
	merged["repositories"] = repos

	if failures == len(pc.Links) {
		pc.recordError(StageAnalyze, fetch.Stage(string(StageAnalyze),
			fmt.Errorf("all %d repository analyses failed", failures)))
		return
	}
	pc.recordFindings(StageAnalyze, merged)
}

func (co *Coordinator) runQualityStage(ctx context.Context, pc *Context) {
	findings, err := co.agents.Quality.Invoke(ctx, StageAssessQuality, pc)
	if err != nil {
		pc.recordError(StageAssessQuality, fetch.Stage(string(StageAssessQuality), err))
		return
	}
	pc.recordFindings(StageAssessQuality, findings)
	if !pc.Errored() {
		pc.State = StateAssessed
	}
}

// runDocumentStage always runs, even for errored papers: the partial
// context is surfaced with missing sections explicitly flagged absent.
func (co *Coordinator) runDocumentStage(ctx context.Context, pc *Context) {
	findings, err := co.agents.Documentation.Invoke(ctx, StageDocument, pc)
	if err != nil {
		pc.recordError(StageDocument, fetch.Stage(string(StageDocument), err))
		return
	}
	pc.recordFindings(StageDocument, findings)
	pc.State = StateDocumented
}
