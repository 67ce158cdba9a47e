package core

import (
	"context"
	"errors"
	"fmt"
)

// OutcomeKind tags the result of a single tool attempt.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the tagged result of one tool attempt: Ok(output),
// Retryable(err) or Fatal(err). Retry and skip decisions switch on Kind.
type Outcome struct {
	Kind   OutcomeKind
	Output map[string]any
	Err    error
}

// Ok wraps a successful output.
func Ok(output map[string]any) Outcome {
	if output == nil {
		output = map[string]any{}
	}
	return Outcome{Kind: OutcomeOK, Output: output}
}

// Retryable wraps a failure that the retry policy may retry.
func Retryable(err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Err: err}
}

// Fatal wraps a failure that ends the tool immediately.
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// Classify turns an invoker return into an Outcome. attemptErr is the error
// of the per-attempt context, used to recognise per-tool timeouts.
//
//   - attempt deadline exceeded      -> Retryable(TimeoutError), even
//     when a late output arrived
//   - nil error                     -> Ok
//   - DomainError with !Retryable   -> Fatal
//   - any other error               -> Retryable(ToolInvocationError)
func Classify(tool string, output map[string]any, err, attemptErr error) Outcome {
	if errors.Is(attemptErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		cause := err
		if cause == nil {
			cause = attemptErr
		}
		return Retryable(ErrTimeout(fmt.Sprintf("tool %q timed out", tool)).WithCause(cause))
	}
	if err == nil {
		return Ok(output)
	}

	var domErr *DomainError
	if errors.As(err, &domErr) {
		if !domErr.Retryable {
			return Fatal(err)
		}
		return Retryable(err)
	}
	return Retryable(ErrToolInvocation(tool, err))
}
