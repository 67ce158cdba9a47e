package core

import "context"

// =============================================================================
// Tool Invoker Port
// =============================================================================

// Invoker executes one named tool. The orchestration core treats input and
// output records as opaque apart from the well-known keys below.
type Invoker interface {
	Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	return f(ctx, tool, input, config)
}

// Binding maps every tool of a workflow to the invoker that runs it. It is
// resolved once, before the run starts.
type Binding map[string]Invoker

// Well-known output keys read by the orchestration core.
const (
	KeyInsights        = "insights"
	KeyRecommendations = "recommendations"
	KeyAnalysis        = "analysis"
	KeyConfidence      = "confidence"
	KeyError           = "error"
	KeyIncomplete      = "incomplete"
)

// SemanticKeys are projected from dependency outputs into downstream inputs.
var SemanticKeys = []string{KeyInsights, KeyRecommendations, KeyAnalysis}

// =============================================================================
// Run Control Port
// =============================================================================

// RunController starts, inspects and cancels workflow runs.
type RunController interface {
	Start(ctx context.Context, spec *WorkflowSpec) (string, error)
	Get(runID string) (*WorkflowResult, error)
	Cancel(runID string) error
	List() []RunSummary
}

// RunSummary is a lightweight listing entry for a run.
type RunSummary struct {
	RunID    string         `json:"run_id"`
	Workflow string         `json:"workflow"`
	Status   WorkflowStatus `json:"status"`
}
