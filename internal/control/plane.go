// Package control carries the cancellation signal of a single run between
// the caller that owns the run and the executor driving it.
package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// ControlPlane provides run control capabilities. Cancelling only requests
// the stop; the executor observes it through the context returned by New
// and finishes in-flight tools before the run ends.
type ControlPlane struct {
	cancel context.CancelCauseFunc

	cancelled   atomic.Bool
	requestedAt atomic.Pointer[time.Time]

	finishOnce sync.Once
	done       chan struct{}
}

// New creates a ControlPlane and the run context it controls.
func New(parent context.Context) (context.Context, *ControlPlane) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, &ControlPlane{
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel requests cancellation of the run. Repeated requests succeed
// without effect; a finished run reports a RUN_FINISHED conflict.
func (cp *ControlPlane) Cancel() error {
	if cp.IsFinished() {
		return core.ErrConflict(core.CodeRunFinished, "run already finished")
	}
	if cp.cancelled.CompareAndSwap(false, true) {
		now := time.Now()
		cp.requestedAt.Store(&now)
		cp.cancel(core.ErrCancelled())
	}
	return nil
}

// IsCancelled returns true once cancellation was requested.
func (cp *ControlPlane) IsCancelled() bool {
	return cp.cancelled.Load()
}

// RequestedAt returns when cancellation was requested.
func (cp *ControlPlane) RequestedAt() (time.Time, bool) {
	t := cp.requestedAt.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// CheckCancelled returns an error if cancelled.
func (cp *ControlPlane) CheckCancelled() error {
	if cp.cancelled.Load() {
		return core.ErrCancelled()
	}
	return nil
}

// Finish marks the run as finished and releases the run context.
func (cp *ControlPlane) Finish() {
	cp.finishOnce.Do(func() {
		close(cp.done)
		cp.cancel(nil)
	})
}

// IsFinished returns true after Finish.
func (cp *ControlPlane) IsFinished() bool {
	select {
	case <-cp.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the run finishes.
func (cp *ControlPlane) Done() <-chan struct{} {
	return cp.done
}

// Wait blocks until the run finishes or ctx is done.
func (cp *ControlPlane) Wait(ctx context.Context) error {
	select {
	case <-cp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
