package events

import "time"

// Event type constants for tool events.
const (
	TypeToolStarted   = "tool_started"
	TypeToolRetrying  = "tool_retrying"
	TypeToolCompleted = "tool_completed"
	TypeToolFailed    = "tool_failed"
	TypeToolSkipped   = "tool_skipped"
	TypeToolOptimized = "tool_optimized"
	TypeToolCorrected = "tool_corrected"
)

// ToolStartedEvent is emitted at the start of every attempt.
type ToolStartedEvent struct {
	BaseEvent
	Tool    string `json:"tool"`
	Attempt int    `json:"attempt"`
}

// NewToolStartedEvent creates a new tool started event.
func NewToolStartedEvent(runID, workflow, tool string, attempt int) ToolStartedEvent {
	return ToolStartedEvent{
		BaseEvent: NewBaseEvent(TypeToolStarted, runID, workflow),
		Tool:      tool,
		Attempt:   attempt,
	}
}

// ToolRetryingEvent is emitted when a failed attempt will be retried.
type ToolRetryingEvent struct {
	BaseEvent
	Tool    string        `json:"tool"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Error   string        `json:"error"`
}

// NewToolRetryingEvent creates a new tool retrying event.
func NewToolRetryingEvent(runID, workflow, tool string, attempt int, delay time.Duration, err error) ToolRetryingEvent {
	return ToolRetryingEvent{
		BaseEvent: NewBaseEvent(TypeToolRetrying, runID, workflow),
		Tool:      tool,
		Attempt:   attempt,
		Delay:     delay,
		Error:     errString(err),
	}
}

// ToolCompletedEvent is emitted when a tool succeeds.
type ToolCompletedEvent struct {
	BaseEvent
	Tool     string        `json:"tool"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// NewToolCompletedEvent creates a new tool completed event.
func NewToolCompletedEvent(runID, workflow, tool string, attempts int, duration time.Duration) ToolCompletedEvent {
	return ToolCompletedEvent{
		BaseEvent: NewBaseEvent(TypeToolCompleted, runID, workflow),
		Tool:      tool,
		Attempts:  attempts,
		Duration:  duration,
	}
}

// ToolFailedEvent is emitted when a tool ends Failed.
type ToolFailedEvent struct {
	BaseEvent
	Tool     string `json:"tool"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// NewToolFailedEvent creates a new tool failed event.
func NewToolFailedEvent(runID, workflow, tool string, attempts int, err error) ToolFailedEvent {
	return ToolFailedEvent{
		BaseEvent: NewBaseEvent(TypeToolFailed, runID, workflow),
		Tool:      tool,
		Attempts:  attempts,
		Error:     errString(err),
	}
}

// ToolSkippedEvent is emitted when a tool is skipped without being invoked.
type ToolSkippedEvent struct {
	BaseEvent
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// NewToolSkippedEvent creates a new tool skipped event.
func NewToolSkippedEvent(runID, workflow, tool, reason string) ToolSkippedEvent {
	return ToolSkippedEvent{
		BaseEvent: NewBaseEvent(TypeToolSkipped, runID, workflow),
		Tool:      tool,
		Reason:    reason,
	}
}

// ToolOptimizedEvent is emitted after the quality optimizer ran on a tool's
// input.
type ToolOptimizedEvent struct {
	BaseEvent
	Tool           string  `json:"tool"`
	Rounds         int     `json:"rounds"`
	InitialQuality float64 `json:"initial_quality"`
	FinalQuality   float64 `json:"final_quality"`
	Converged      bool    `json:"converged"`
}

// NewToolOptimizedEvent creates a new tool optimized event.
func NewToolOptimizedEvent(runID, workflow, tool string, rounds int, initial, final float64, converged bool) ToolOptimizedEvent {
	return ToolOptimizedEvent{
		BaseEvent:      NewBaseEvent(TypeToolOptimized, runID, workflow),
		Tool:           tool,
		Rounds:         rounds,
		InitialQuality: initial,
		FinalQuality:   final,
		Converged:      converged,
	}
}

// ToolCorrectedEvent is emitted after a corrective pass on a tool's output.
type ToolCorrectedEvent struct {
	BaseEvent
	Tool     string   `json:"tool"`
	Reasons  []string `json:"reasons"`
	Accepted bool     `json:"accepted"`
}

// NewToolCorrectedEvent creates a new tool corrected event.
func NewToolCorrectedEvent(runID, workflow, tool string, reasons []string, accepted bool) ToolCorrectedEvent {
	return ToolCorrectedEvent{
		BaseEvent: NewBaseEvent(TypeToolCorrected, runID, workflow),
		Tool:      tool,
		Reasons:   reasons,
		Accepted:  accepted,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
