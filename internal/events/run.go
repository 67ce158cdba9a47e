package events

import "time"

// Event type constants for run events.
const (
	TypeRunStarted         = "run_started"
	TypeRunFinished        = "run_finished"
	TypeRunCancelRequested = "run_cancel_requested"
	TypeBatchStarted       = "batch_started"
)

// RunStartedEvent is emitted once the plan is ready and the first batch is
// about to run.
type RunStartedEvent struct {
	BaseEvent
	Batches [][]string `json:"batches"`
}

// NewRunStartedEvent creates a new run started event.
func NewRunStartedEvent(runID, workflow string, batches [][]string) RunStartedEvent {
	return RunStartedEvent{
		BaseEvent: NewBaseEvent(TypeRunStarted, runID, workflow),
		Batches:   batches,
	}
}

// RunFinishedEvent is emitted when a run reaches a terminal status.
type RunFinishedEvent struct {
	BaseEvent
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Errors   []string      `json:"errors,omitempty"`
}

// NewRunFinishedEvent creates a new run finished event.
func NewRunFinishedEvent(runID, workflow, status string, duration time.Duration, errs []string) RunFinishedEvent {
	return RunFinishedEvent{
		BaseEvent: NewBaseEvent(TypeRunFinished, runID, workflow),
		Status:    status,
		Duration:  duration,
		Errors:    errs,
	}
}

// RunCancelRequestedEvent is emitted when a caller asks to cancel a run.
type RunCancelRequestedEvent struct {
	BaseEvent
}

// NewRunCancelRequestedEvent creates a new cancel request event.
func NewRunCancelRequestedEvent(runID, workflow string) RunCancelRequestedEvent {
	return RunCancelRequestedEvent{BaseEvent: NewBaseEvent(TypeRunCancelRequested, runID, workflow)}
}

// BatchStartedEvent is emitted when a batch begins.
type BatchStartedEvent struct {
	BaseEvent
	Index int      `json:"index"`
	Tools []string `json:"tools"`
}

// NewBatchStartedEvent creates a new batch started event.
func NewBatchStartedEvent(runID, workflow string, index int, tools []string) BatchStartedEvent {
	return BatchStartedEvent{
		BaseEvent: NewBaseEvent(TypeBatchStarted, runID, workflow),
		Index:     index,
		Tools:     tools,
	}
}
