package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// RetryPolicy defines how failed tool attempts are retried. Delays grow as
// BaseDelay * Multiplier^attempt (attempt counted from 0) and are capped at
// MaxDelay, so successive delays never decrease.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy returns a default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxRetries = n
	}
}

// WithBaseDelay sets the initial delay.
func WithBaseDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the maximum delay.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxDelay = d
	}
}

// WithMultiplier sets the exponential multiplier.
func WithMultiplier(m float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.Multiplier = m
	}
}

// NewRetryPolicy creates a new retry policy.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForTool returns a copy of the policy using the tool's retry budget.
func (p *RetryPolicy) ForTool(tool core.ToolSpec) *RetryPolicy {
	cp := *p
	cp.MaxRetries = tool.MaxRetries
	return &cp
}

// MaxAttempts returns the total number of attempts, MaxRetries+1.
func (p *RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before the retry that follows attempt (from 0).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// AttemptFunc runs one attempt. attempt counts from 0.
type AttemptFunc func(attempt int) core.Outcome

// RetryNotifyFunc is called before waiting for a retry. nextAttempt is the
// 1-based number of the attempt that will follow.
type RetryNotifyFunc func(nextAttempt int, err error, delay time.Duration)

// Do runs fn until it succeeds, fails fatally or the retry budget is spent.
// stop ends the loop between attempts: no retry starts and no backoff wait
// continues once it is done; the returned outcome is then Fatal with the
// context's cause. An exhausted budget yields a Fatal outcome wrapping a
// RetryExhaustedError.
func (p *RetryPolicy) Do(stop context.Context, fn AttemptFunc, notify RetryNotifyFunc) core.Outcome {
	maxAttempts := p.MaxAttempts()
	var last core.Outcome

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && stop.Err() != nil {
			return core.Fatal(context.Cause(stop))
		}

		last = fn(attempt)
		if last.Kind != core.OutcomeRetryable {
			return last
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if notify != nil {
			notify(attempt+2, last.Err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-stop.Done():
			timer.Stop()
			return core.Fatal(context.Cause(stop))
		case <-timer.C:
		}
	}

	return core.Fatal(&RetryExhaustedError{Attempts: maxAttempts, LastErr: last.Err})
}

// RetryExhaustedError indicates all retry attempts failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	_, ok := err.(*RetryExhaustedError)
	return ok
}
