package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ToolResult is the terminal record of one tool in a finished run.
type ToolResult struct {
	Status      ToolStatus        `json:"status" yaml:"status"`
	Attempts    int               `json:"attempts" yaml:"attempts"`
	Output      map[string]any    `json:"output,omitempty" yaml:"output,omitempty"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
	SkipReason  string            `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	DurationMS  int64             `json:"duration_ms" yaml:"duration_ms"`
	Iterations  []IterationRecord `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Corrected   bool              `json:"corrected,omitempty" yaml:"corrected,omitempty"`
}

// WorkflowResult is the final report of a run.
type WorkflowResult struct {
	RunID       string                `json:"run_id" yaml:"run_id"`
	Workflow    string                `json:"workflow" yaml:"workflow"`
	Status      WorkflowStatus        `json:"status" yaml:"status"`
	StartedAt   time.Time             `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time             `json:"completed_at" yaml:"completed_at"`
	DurationMS  int64                 `json:"duration_ms" yaml:"duration_ms"`
	Tools       map[string]ToolResult `json:"tools" yaml:"tools"`
	Plan        [][]string            `json:"plan,omitempty" yaml:"plan,omitempty"`
	Errors      []string              `json:"errors" yaml:"errors"`
}

// Freeze converts the run state into its final result. The run state
// should not be mutated afterwards.
func (r *WorkflowRunState) Freeze(plan *ExecutionPlan) *WorkflowResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := &WorkflowResult{
		RunID:     r.RunID,
		Workflow:  r.Workflow,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Tools:     make(map[string]ToolResult, len(r.tools)),
		Errors:    append([]string{}, r.errors...),
	}
	if r.CompletedAt != nil {
		result.CompletedAt = *r.CompletedAt
	} else {
		result.CompletedAt = time.Now()
	}
	if !result.StartedAt.IsZero() {
		result.DurationMS = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	}
	if plan != nil {
		result.Plan = make([][]string, len(plan.Batches))
		for i, batch := range plan.Batches {
			result.Plan[i] = append([]string(nil), batch...)
		}
	}

	for name, st := range r.tools {
		result.Tools[name] = ToolResult{
			Status:      st.Status,
			Attempts:    st.Attempt,
			Output:      st.Output,
			Error:       st.Error,
			SkipReason:  st.SkipReason,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
			DurationMS:  st.Duration().Milliseconds(),
			Iterations:  append([]IterationRecord(nil), st.Iterations...),
			Corrected:   st.Corrected,
		}
	}
	return result
}

// ToolNames returns the result's tools in plan order, falling back to
// alphabetical order for tools missing from the plan.
func (w *WorkflowResult) ToolNames() []string {
	seen := make(map[string]bool, len(w.Tools))
	names := make([]string, 0, len(w.Tools))
	for _, batch := range w.Plan {
		for _, n := range batch {
			if _, ok := w.Tools[n]; ok && !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	rest := make([]string, 0)
	for n := range w.Tools {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Count returns how many tools ended in the given status.
func (w *WorkflowResult) Count(status ToolStatus) int {
	n := 0
	for _, t := range w.Tools {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Summary renders the result as flat human-readable text.
func (w *WorkflowResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s): %s in %dms\n", w.RunID, w.Workflow, w.Status, w.DurationMS)
	fmt.Fprintf(&b, "tools: %d completed, %d failed, %d skipped\n",
		w.Count(ToolStatusCompleted), w.Count(ToolStatusFailed), w.Count(ToolStatusSkipped))

	for _, name := range w.ToolNames() {
		t := w.Tools[name]
		line := fmt.Sprintf("  %-24s %-10s attempts=%d", name, t.Status, t.Attempts)
		switch t.Status {
		case ToolStatusFailed:
			line += " error=" + t.Error
		case ToolStatusSkipped:
			line += " reason=" + t.SkipReason
		}
		b.WriteString(line + "\n")
	}

	if len(w.Errors) > 0 {
		b.WriteString("errors:\n")
		for _, e := range w.Errors {
			b.WriteString("  - " + e + "\n")
		}
	}
	return b.String()
}
