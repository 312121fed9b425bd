// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"fmt"
	"io"

	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// State is the lifecycle of one download task. Transitions run forward
// only: Pending → InFlight → {Cached, Succeeded, Failed}. Retries of
// transient failures happen inside the fetch layer and surface here as a
// single terminal outcome with an attempt count.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateCached
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateCached:
		return "cached"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one download task. Task-level errors
// are captured here, never propagated across the worker-pool boundary.
type Outcome struct {
	Record   types.PaperRecord
	State    State
	Attempts int

	// Path is the local PDF location for Cached and Succeeded outcomes.
	Path string

	// Err and Kind describe the failure for Failed outcomes.
	Err  error
	Kind fetch.Kind
}

// BatchResult summarizes a batch of download outcomes.
type BatchResult struct {
	Succeeded int
	Cached    int
	Failed    int
	Outcomes  []Outcome
}

// Total returns the number of tasks processed.
func (r BatchResult) Total() int {
	return r.Succeeded + r.Cached + r.Failed
}

// HasFailures reports whether any task failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// add folds one outcome into the summary.
func (r *BatchResult) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.State {
	case StateCached:
		r.Cached++
	case StateSucceeded:
		r.Succeeded++
	default:
		r.Failed++
	}
}

// report writes one progress line: state, canonical id, and the error
// kind for failures.
func (o Outcome) report(w io.Writer) {
	switch o.State {
	case StateCached:
		fmt.Fprintf(w, "cached:     %s\n", o.Record.CanonicalID)
	case StateSucceeded:
		fmt.Fprintf(w, "downloaded: %s (attempts: %d)\n", o.Record.CanonicalID, o.Attempts)
	default:
		fmt.Fprintf(w, "failed:     %s (%s: %v)\n", o.Record.CanonicalID, o.Kind, o.Err)
	}
}
