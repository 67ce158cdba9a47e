package testutil

import (
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Tool returns an analysis tool without retries that depends on deps.
func Tool(name string, deps ...string) core.ToolSpec {
	return core.ToolSpec{
		Name:      name,
		Type:      core.ToolTypeAnalysis,
		DependsOn: deps,
	}
}

// NewTestWorkflow creates a parallel workflow with sensible defaults for
// tests. Use functional options to override specific fields.
func NewTestWorkflow(tools []core.ToolSpec, opts ...func(*core.WorkflowSpec)) *core.WorkflowSpec {
	ws := &core.WorkflowSpec{
		Name:           "test-workflow",
		Problem:        "Review the payment service for reliability issues",
		Tools:          tools,
		AllowParallel:  true,
		MaxParallelism: 4,
		Timeout:        10 * time.Second,
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// Sequential disables parallel batches.
func Sequential(ws *core.WorkflowSpec) {
	ws.AllowParallel = false
}

// FetchSummarizeReport returns the three-step pipeline fetch -> summarize ->
// report.
func FetchSummarizeReport() *core.WorkflowSpec {
	return NewTestWorkflow([]core.ToolSpec{
		Tool("fetch"),
		Tool("summarize", "fetch"),
		Tool("report", "summarize"),
	})
}
