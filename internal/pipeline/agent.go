// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "context"

// Agent is the boundary between the pipeline core and the analysis logic.
// Invoke receives the stage name and the paper's accumulated context and
// returns structured findings. The core does not interpret findings
// content; it threads them forward and checks the error for stage-failure
// transitions. Implementations must be safe for concurrent invocation
// across papers.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, stage Stage, pc *Context) (Findings, error)
}

// Agents groups the four pipeline agents by role.
type Agents struct {
	Research      Agent
	CodeAnalysis  Agent
	Quality       Agent
	Documentation Agent
}
