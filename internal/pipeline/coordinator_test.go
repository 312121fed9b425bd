// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sesla/securipaperbot/internal/download"
	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/internal/ratelimit"
	"github.com/sesla/securipaperbot/pkg/types"
)

// stubAgent wires a function into the Agent interface for tests.
type stubAgent struct {
	name string
	fn   func(pc *Context) (Findings, error)
}

func (a stubAgent) Name() string { return a.name }

func (a stubAgent) Invoke(_ context.Context, _ Stage, pc *Context) (Findings, error) {
	return a.fn(pc)
}

func okAgents() Agents {
	return Agents{
		Research: stubAgent{"research", func(pc *Context) (Findings, error) {
			pc.Links = []types.RepoLink{
				{PaperID: pc.Record.CanonicalID, URL: "https://github.com/acme/artifact", Confidence: 0.8},
				{PaperID: pc.Record.CanonicalID, URL: "https://github.com/acme/eval", Confidence: 0.5},
			}
			return Findings{"links_found": len(pc.Links)}, nil
		}},
		CodeAnalysis: stubAgent{"code-analysis", func(pc *Context) (Findings, error) {
			return Findings{"repo_url": pc.Link.URL}, nil
		}},
		Quality: stubAgent{"quality", func(_ *Context) (Findings, error) {
			return Findings{"overall_score": 0.5}, nil
		}},
		Documentation: stubAgent{"documentation", func(_ *Context) (Findings, error) {
			return Findings{"format": "markdown"}, nil
		}},
	}
}

func testCoordinator(t *testing.T, ts *httptest.Server, agents Agents) *Coordinator {
	t.Helper()
	dl := types.DownloadConfig{
		Path:                   t.TempDir(),
		MaxRetries:             1,
		MaxConcurrentDownloads: 2,
		UserAgent:              "securipaperbot-test/0.1",
		Timeout:                5 * time.Second,
	}
	sec := types.SecurityConfig{VerifySSL: true, RateLimit: 600000}
	f := fetch.New(dl, sec, ratelimit.New(sec.RateLimit), fetch.WithClient(ts.Client()))

	resolve := func(_ context.Context, rec types.PaperRecord) (string, error) {
		return ts.URL + "/pdf/" + rec.Slug() + ".pdf", nil
	}
	d := download.New(f, nil, resolve, dl, nil)
	return NewCoordinator(d, nil, agents, types.OutputConfig{Path: t.TempDir()}, nil)
}

func pdfServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/pdf/") {
			w.Write([]byte("%PDF-1.4 see https://github.com/acme/artifact"))
			return
		}
		http.NotFound(w, r)
	}))
}

func record(id string) types.PaperRecord {
	return types.PaperRecord{Conference: "ccs", Year: "23", Title: "Paper", CanonicalID: id}
}

func TestProcessPapersHappyPath(t *testing.T) {
	ts := pdfServer(t)
	defer ts.Close()

	co := testCoordinator(t, ts, okAgents())
	var buf bytes.Buffer

	summary, contexts, err := co.ProcessPapers(context.Background(), []types.PaperRecord{record("10.1145/1")}, &buf)
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}

	if summary.Papers != 1 || summary.Documented != 1 || summary.Errored != 0 {
		t.Errorf("summary = %+v, want 1 paper documented", summary)
	}
	if summary.ReposAnalyzed != 2 {
		t.Errorf("ReposAnalyzed = %d, want 2", summary.ReposAnalyzed)
	}

	pc := contexts[0]
	if pc.State != StateDone {
		t.Errorf("State = %q, want done", pc.State)
	}
	for _, stage := range []Stage{StageFetch, StageExtractLinks, StageAnalyze, StageAssessQuality, StageDocument} {
		if _, ok := pc.Findings[stage]; !ok {
			t.Errorf("missing findings for stage %s", stage)
		}
	}
	if got := pc.Findings[StageAnalyze]["repositories_analyzed"]; got != 2 {
		t.Errorf("repositories_analyzed = %v, want 2", got)
	}

	// Context file saved per paper.
	saved := filepath.Join(co.outputDir, pc.Record.Slug()+".json")
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("context file missing: %v", err)
	}
	if !strings.Contains(buf.String(), "Pipeline summary:") {
		t.Error("output should contain pipeline summary")
	}
}

func TestFetchFailureSkipsAnalysisButDocuments(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	invoked := map[string]bool{}
	agents := okAgents()
	agents.Research = stubAgent{"research", func(_ *Context) (Findings, error) {
		invoked["research"] = true
		return nil, nil
	}}
	agents.Documentation = stubAgent{"documentation", func(_ *Context) (Findings, error) {
		invoked["documentation"] = true
		return Findings{"format": "markdown"}, nil
	}}

	co := testCoordinator(t, ts, agents)
	summary, contexts, err := co.ProcessPapers(context.Background(), []types.PaperRecord{record("10.1145/gone")}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}

	if summary.Errored != 1 {
		t.Errorf("Errored = %d, want 1", summary.Errored)
	}
	if invoked["research"] {
		t.Error("research must not run after a fetch failure")
	}
	if !invoked["documentation"] {
		t.Error("documentation must run even after a fetch failure")
	}

	pc := contexts[0]
	if _, ok := pc.StageErrors[StageFetch]; !ok {
		t.Error("fetch stage error not recorded")
	}
	if pc.State != StateDocumented {
		t.Errorf("State = %q, want documented", pc.State)
	}
	if !pc.Errored() {
		t.Error("Errored() = false, want true")
	}
}

func TestAnalyzeStagePartialRepoFailure(t *testing.T) {
	ts := pdfServer(t)
	defer ts.Close()

	agents := okAgents()
	agents.CodeAnalysis = stubAgent{"code-analysis", func(pc *Context) (Findings, error) {
		if strings.HasSuffix(pc.Link.URL, "/eval") {
			return nil, errors.New("clone failed")
		}
		return Findings{"repo_url": pc.Link.URL}, nil
	}}

	co := testCoordinator(t, ts, agents)
	_, contexts, err := co.ProcessPapers(context.Background(), []types.PaperRecord{record("10.1145/1")}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}

	pc := contexts[0]
	// One repository failing must not fail the stage.
	if pc.Errored() {
		t.Fatalf("paper errored: %v", pc.StageErrors)
	}
	analyze := pc.Findings[StageAnalyze]
	if analyze["repositories_analyzed"] != 1 {
		t.Errorf("repositories_analyzed = %v, want 1", analyze["repositories_analyzed"])
	}
	if analyze["repositories_failed"] != 1 {
		t.Errorf("repositories_failed = %v, want 1", analyze["repositories_failed"])
	}
}

func TestAnalyzeStageAllReposFail(t *testing.T) {
	ts := pdfServer(t)
	defer ts.Close()

	agents := okAgents()
	agents.CodeAnalysis = stubAgent{"code-analysis", func(_ *Context) (Findings, error) {
		return nil, errors.New("clone failed")
	}}

	co := testCoordinator(t, ts, agents)
	summary, contexts, err := co.ProcessPapers(context.Background(), []types.PaperRecord{record("10.1145/1")}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}

	pc := contexts[0]
	if _, ok := pc.StageErrors[StageAnalyze]; !ok {
		t.Error("analyze stage error not recorded")
	}
	if summary.Errored != 1 {
		t.Errorf("Errored = %d, want 1", summary.Errored)
	}
	// The quality stage still runs on the partial context, and the paper
	// is still documented.
	if _, ok := pc.Findings[StageAssessQuality]; !ok {
		t.Error("quality findings missing for errored paper")
	}
	if _, ok := pc.Findings[StageDocument]; !ok {
		t.Error("document findings missing for errored paper")
	}
	if pc.State != StateDocumented {
		t.Errorf("State = %q, want documented", pc.State)
	}
}

func TestAnalyzeStageChildrenIsolated(t *testing.T) {
	ts := pdfServer(t)
	defer ts.Close()

	agents := okAgents()
	agents.CodeAnalysis = stubAgent{"code-analysis", func(pc *Context) (Findings, error) {
		// An agent writing through its context must not reach the parent
		// or a sibling invocation.
		pc.Links = append(pc.Links, types.RepoLink{URL: "https://github.com/acme/scratch"})
		pc.Findings[Stage("scratch")] = Findings{"n": 1}
		pc.StageErrors[Stage("scratch")] = "scratch"
		return Findings{"repo_url": pc.Link.URL}, nil
	}}

	co := testCoordinator(t, ts, agents)
	_, contexts, err := co.ProcessPapers(context.Background(), []types.PaperRecord{record("10.1145/1")}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}

	pc := contexts[0]
	if pc.Errored() {
		t.Fatalf("child stage error leaked into parent: %v", pc.StageErrors)
	}
	if len(pc.Links) != 2 {
		t.Errorf("len(Links) = %d, want 2; child append leaked into parent", len(pc.Links))
	}
	if _, ok := pc.Findings[Stage("scratch")]; ok {
		t.Error("child findings write leaked into parent")
	}
	if got := pc.Findings[StageAnalyze]["repositories_analyzed"]; got != 2 {
		t.Errorf("repositories_analyzed = %v, want 2", got)
	}
}

func TestProcessPapersIsolatesFailures(t *testing.T) {
	ts := pdfServer(t)
	defer ts.Close()

	co := testCoordinator(t, ts, okAgents())
	records := []types.PaperRecord{record("10.1145/1"), record("10.1145/2"), record("10.1145/3")}

	summary, contexts, err := co.ProcessPapers(context.Background(), records, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ProcessPapers: %v", err)
	}
	if summary.Papers != 3 || summary.Documented != 3 {
		t.Errorf("summary = %+v, want 3 papers documented", summary)
	}
	if len(contexts) != 3 {
		t.Errorf("len(contexts) = %d, want 3", len(contexts))
	}
}
