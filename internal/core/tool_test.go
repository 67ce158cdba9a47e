package core

import (
	"errors"
	"testing"
)

func TestToolExecutionState_HappyPath(t *testing.T) {
	st := NewToolExecutionState("fetch")

	if err := st.MarkCompleted(nil); err == nil {
		t.Fatalf("expected error completing from pending")
	}

	if err := st.MarkRunning(); err != nil {
		t.Fatalf("unexpected error starting tool: %v", err)
	}
	if st.Status != ToolStatusRunning || st.Attempt != 1 {
		t.Fatalf("expected running attempt 1, got %s attempt %d", st.Status, st.Attempt)
	}
	if st.StartedAt == nil {
		t.Fatalf("expected StartedAt to be set")
	}

	if err := st.MarkRunning(); err == nil {
		t.Fatalf("expected error starting from running")
	}

	if err := st.MarkCompleted(map[string]any{"analysis": "ok"}); err != nil {
		t.Fatalf("unexpected error completing tool: %v", err)
	}
	if !st.IsTerminal() || st.CompletedAt == nil {
		t.Fatalf("expected terminal state with CompletedAt")
	}
}

func TestToolExecutionState_RetryCycle(t *testing.T) {
	st := NewToolExecutionState("summarize")
	_ = st.MarkRunning()
	started := *st.StartedAt

	if err := st.MarkRetrying(errors.New("boom")); err != nil {
		t.Fatalf("MarkRetrying() error = %v", err)
	}
	if st.Status != ToolStatusRetrying || st.Error != "boom" {
		t.Fatalf("unexpected state %s / %q", st.Status, st.Error)
	}

	if err := st.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() after retrying error = %v", err)
	}
	if st.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", st.Attempt)
	}
	if !st.StartedAt.Equal(started) {
		t.Errorf("StartedAt should keep the first attempt time")
	}

	if err := st.MarkFailed(errors.New("still broken")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if st.Status != ToolStatusFailed || st.Error != "still broken" {
		t.Fatalf("unexpected state %s / %q", st.Status, st.Error)
	}
}

func TestToolExecutionState_FailFromRetrying(t *testing.T) {
	st := NewToolExecutionState("x")
	_ = st.MarkRunning()
	_ = st.MarkRetrying(errors.New("e1"))

	if err := st.MarkFailed(nil); err != nil {
		t.Fatalf("MarkFailed() from retrying error = %v", err)
	}
	if st.Error != "e1" {
		t.Errorf("Error = %q, want last attempt error", st.Error)
	}
}

func TestToolExecutionState_Skip(t *testing.T) {
	st := NewToolExecutionState("report")
	if err := st.MarkSkipped("upstream failed"); err != nil {
		t.Fatalf("MarkSkipped() error = %v", err)
	}
	if st.Attempt != 0 || st.StartedAt != nil {
		t.Fatalf("skipped tool must never start")
	}

	running := NewToolExecutionState("y")
	_ = running.MarkRunning()
	err := running.MarkSkipped("late")
	if !IsCategory(err, ErrCatState) {
		t.Fatalf("expected state error skipping a running tool, got %v", err)
	}
}

func TestToolSpec_WantsOptimization(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name string
		spec ToolSpec
		want bool
	}{
		{"analysis default", ToolSpec{Type: ToolTypeAnalysis}, false},
		{"prompt default", ToolSpec{Type: ToolTypePromptBased}, true},
		{"analysis forced on", ToolSpec{Type: ToolTypeAnalysis, Optimize: &on}, true},
		{"prompt forced off", ToolSpec{Type: ToolTypePromptBased, Optimize: &off}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.WantsOptimization(); got != tt.want {
				t.Errorf("WantsOptimization() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolType_Valid(t *testing.T) {
	if !ToolTypeAnalysis.Valid() || !ToolTypePromptBased.Valid() {
		t.Fatalf("known types must be valid")
	}
	if ToolType("script").Valid() {
		t.Fatalf("unknown type must be invalid")
	}
}
