package core

import (
	"sort"
	"sync"
	"time"
)

// WorkflowStatus represents the overall state of a run.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusPartial   WorkflowStatus = "partial"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// IsTerminal returns true once a run has finished.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusPartial, WorkflowStatusCancelled:
		return true
	}
	return false
}

// WorkflowSpec declares a set of tools and how they may be scheduled.
type WorkflowSpec struct {
	Name           string        `json:"name" yaml:"name"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	Problem        string        `json:"problem,omitempty" yaml:"problem,omitempty"`
	Tools          []ToolSpec    `json:"tools" yaml:"tools"`
	AllowParallel  bool          `json:"allow_parallel" yaml:"allow_parallel"`
	MaxParallelism int           `json:"max_parallelism" yaml:"max_parallelism"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Tool returns the spec of the named tool.
func (w *WorkflowSpec) Tool(name string) (ToolSpec, bool) {
	for _, t := range w.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

// ToolNames returns tool names in declaration order.
func (w *WorkflowSpec) ToolNames() []string {
	names := make([]string, len(w.Tools))
	for i, t := range w.Tools {
		names[i] = t.Name
	}
	return names
}

// WorkflowRunState owns every ToolExecutionState of one run. The mutex
// guards the map and run-level fields only; it is never held across a
// tool invocation or a backoff sleep.
type WorkflowRunState struct {
	RunID       string
	Workflow    string
	Status      WorkflowStatus
	StartedAt   time.Time
	CompletedAt *time.Time

	mu     sync.RWMutex
	tools  map[string]*ToolExecutionState
	errors []string
}

// NewWorkflowRunState creates the state of a new run.
func NewWorkflowRunState(runID, workflow string) *WorkflowRunState {
	return &WorkflowRunState{
		RunID:    runID,
		Workflow: workflow,
		Status:   WorkflowStatusPending,
		tools:    make(map[string]*ToolExecutionState),
	}
}

// Start marks the run as running.
func (r *WorkflowRunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = WorkflowStatusRunning
	r.StartedAt = time.Now()
}

// Enter registers a tool state at batch-entry time. Entering a tool twice
// returns the existing state.
func (r *WorkflowRunState) Enter(name string) *ToolExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tools[name]; ok {
		return st
	}
	st := NewToolExecutionState(name)
	r.tools[name] = st
	return st
}

// Tool returns a copy of a tool's state.
func (r *WorkflowRunState) Tool(name string) (*ToolExecutionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Update applies fn to a tool's state under the run lock. fn must not block.
func (r *WorkflowRunState) Update(name string, fn func(*ToolExecutionState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.tools[name]
	if !ok {
		return ErrNotFound("tool", name)
	}
	return fn(st)
}

// AddError records a run-level error message.
func (r *WorkflowRunState) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

// Snapshot returns copies of all tool states sorted by name.
func (r *WorkflowRunState) Snapshot() []*ToolExecutionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolExecutionState, 0, len(r.tools))
	for _, st := range r.tools {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts returns the number of tools per status.
func (r *WorkflowRunState) Counts() map[ToolStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[ToolStatus]int)
	for _, st := range r.tools {
		counts[st.Status]++
	}
	return counts
}

// CurrentStatus returns the run status.
func (r *WorkflowRunState) CurrentStatus() WorkflowStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Finish sets the terminal status of the run.
func (r *WorkflowRunState) Finish(status WorkflowStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	now := time.Now()
	r.CompletedAt = &now
}

// DeriveStatus computes the terminal status from tool outcomes:
// Completed when every tool completed (including an empty workflow),
// Partial when at least one completed and at least one failed or was
// skipped, Failed otherwise.
func DeriveStatus(counts map[ToolStatus]int) WorkflowStatus {
	completed := counts[ToolStatusCompleted]
	unfinished := 0
	for status, n := range counts {
		if status != ToolStatusCompleted {
			unfinished += n
		}
	}
	switch {
	case unfinished == 0:
		return WorkflowStatusCompleted
	case completed > 0:
		return WorkflowStatusPartial
	default:
		return WorkflowStatusFailed
	}
}
