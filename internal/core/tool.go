package core

import (
	"fmt"
	"time"
)

// ToolType describes how a tool consumes its input.
type ToolType string

const (
	// ToolTypeAnalysis tools take structured input and are invoked as-is.
	ToolTypeAnalysis ToolType = "analysis"
	// ToolTypePromptBased tools take free-form text whose quality affects
	// the usefulness of their output; they go through the quality optimizer.
	ToolTypePromptBased ToolType = "prompt-based"
)

// Valid reports whether the type is one of the known tool types.
func (t ToolType) Valid() bool {
	return t == ToolTypeAnalysis || t == ToolTypePromptBased
}

// ValidToolTypes lists the accepted tool types.
func ValidToolTypes() []string {
	return []string{string(ToolTypeAnalysis), string(ToolTypePromptBased)}
}

// ToolSpec declares one tool of a workflow. It is immutable once a run starts.
type ToolSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Type       ToolType          `json:"type" yaml:"type"`
	DependsOn  []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int               `json:"max_retries" yaml:"max_retries"`
	Options    map[string]any    `json:"options,omitempty" yaml:"options,omitempty"`
	Inputs     map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Optimize   *bool             `json:"optimize,omitempty" yaml:"optimize,omitempty"`
}

// WantsOptimization reports whether the quality optimizer applies to the tool.
// Prompt-based tools opt in by default; an explicit flag always wins.
func (t ToolSpec) WantsOptimization() bool {
	if t.Optimize != nil {
		return *t.Optimize
	}
	return t.Type == ToolTypePromptBased
}

// ToolStatus represents the current state of a tool within a run.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusRetrying  ToolStatus = "retrying"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
	ToolStatusSkipped   ToolStatus = "skipped"
)

// IsTerminal returns true for statuses that never change again.
func (s ToolStatus) IsTerminal() bool {
	return s == ToolStatusCompleted || s == ToolStatusFailed || s == ToolStatusSkipped
}

// ToolExecutionState tracks one tool during one run. Only the task owning
// the tool's lifecycle writes to it.
type ToolExecutionState struct {
	Name        string            `json:"name"`
	Status      ToolStatus        `json:"status"`
	Attempt     int               `json:"attempt"`
	Input       map[string]any    `json:"input,omitempty"`
	Output      map[string]any    `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	SkipReason  string            `json:"skip_reason,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Iterations  []IterationRecord `json:"iterations,omitempty"`
	Corrected   bool              `json:"corrected,omitempty"`
}

// NewToolExecutionState creates a pending state for a tool.
func NewToolExecutionState(name string) *ToolExecutionState {
	return &ToolExecutionState{
		Name:   name,
		Status: ToolStatusPending,
	}
}

// MarkRunning starts an attempt. Legal from Pending (first attempt) and
// Retrying (subsequent attempts).
func (s *ToolExecutionState) MarkRunning() error {
	switch s.Status {
	case ToolStatusPending:
		now := time.Now()
		s.StartedAt = &now
	case ToolStatusRetrying:
	default:
		return s.illegal(ToolStatusRunning)
	}
	s.Status = ToolStatusRunning
	s.Attempt++
	return nil
}

// MarkRetrying records a failed attempt that will be retried.
func (s *ToolExecutionState) MarkRetrying(err error) error {
	if s.Status != ToolStatusRunning {
		return s.illegal(ToolStatusRetrying)
	}
	s.Status = ToolStatusRetrying
	if err != nil {
		s.Error = err.Error()
	}
	return nil
}

// MarkCompleted finalizes a successful run of the tool.
func (s *ToolExecutionState) MarkCompleted(output map[string]any) error {
	if s.Status != ToolStatusRunning {
		return s.illegal(ToolStatusCompleted)
	}
	s.Status = ToolStatusCompleted
	s.Output = output
	s.Error = ""
	s.finish()
	return nil
}

// MarkFailed finalizes a tool whose retries are exhausted. A tool waiting
// in Retrying can also fail when the run stops scheduling new attempts.
func (s *ToolExecutionState) MarkFailed(err error) error {
	if s.Status != ToolStatusRunning && s.Status != ToolStatusRetrying {
		return s.illegal(ToolStatusFailed)
	}
	s.Status = ToolStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.finish()
	return nil
}

// MarkSkipped finalizes a tool that is never invoked.
func (s *ToolExecutionState) MarkSkipped(reason string) error {
	if s.Status != ToolStatusPending {
		return s.illegal(ToolStatusSkipped)
	}
	s.Status = ToolStatusSkipped
	s.SkipReason = reason
	s.finish()
	return nil
}

// IsTerminal returns true if the tool reached a terminal state.
func (s *ToolExecutionState) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Duration returns how long the tool ran.
func (s *ToolExecutionState) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt)
}

// Clone returns a copy that shares no mutable slices with s. Input and
// output records are treated as immutable once stored.
func (s *ToolExecutionState) Clone() *ToolExecutionState {
	c := *s
	c.Iterations = append([]IterationRecord(nil), s.Iterations...)
	return &c
}

func (s *ToolExecutionState) finish() {
	now := time.Now()
	s.CompletedAt = &now
}

func (s *ToolExecutionState) illegal(to ToolStatus) error {
	return ErrState(CodeInvalidState,
		fmt.Sprintf("tool %q cannot move from %s to %s", s.Name, s.Status, to))
}
