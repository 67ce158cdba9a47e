package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/metrics"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/tracing"
)

// Job is one planned run handed to the executor.
type Job struct {
	ID      string
	Spec    *core.WorkflowSpec
	Plan    *core.ExecutionPlan
	Binding core.Binding
	// State is optional; callers pass one to observe the run while it
	// executes.
	State *core.WorkflowRunState
}

// Executor runs the tools of a planned workflow batch by batch.
type Executor struct {
	retry     *service.RetryPolicy
	optimizer *Optimizer
	bus       *events.EventBus
	metrics   metrics.Recorder
	tracer    trace.Tracer
	logger    *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryPolicy sets the base retry policy. Each tool's MaxRetries
// overrides the policy's budget.
func WithRetryPolicy(p *service.RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithOptimizer enables the quality optimizer.
func WithOptimizer(o *Optimizer) ExecutorOption {
	return func(e *Executor) {
		e.optimizer = o
	}
}

// WithEventBus publishes run and tool transitions to bus.
func WithEventBus(bus *events.EventBus) ExecutorOption {
	return func(e *Executor) {
		e.bus = bus
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTracer sets the tracer for run, batch and tool spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates a new executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		retry:   service.DefaultRetryPolicy(),
		metrics: metrics.Nop{},
		tracer:  tracing.Tracer(nil),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execution is the per-run bookkeeping shared by the tool tasks.
type execution struct {
	job    Job
	state  *core.WorkflowRunState
	logger *logging.Logger

	mu      sync.Mutex
	blocked map[string]string // tool -> failed ancestor
}

func (x *execution) block(failed string) []string {
	downstream := service.Transitive(x.job.Plan, failed)
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, d := range downstream {
		if _, ok := x.blocked[d]; !ok {
			x.blocked[d] = failed
		}
	}
	return downstream
}

func (x *execution) blockedBy(name string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	ancestor, ok := x.blocked[name]
	return ancestor, ok
}

// dependencyOutputs returns the outputs of the tool's completed dependencies.
func (x *execution) dependencyOutputs(tool core.ToolSpec) map[string]map[string]any {
	outputs := make(map[string]map[string]any, len(tool.DependsOn))
	for _, dep := range tool.DependsOn {
		if st, ok := x.state.Tool(dep); ok && st.Status == core.ToolStatusCompleted {
			outputs[dep] = st.Output
		}
	}
	return outputs
}

// Run executes job and returns its final result. It never fails: tool
// failures, cancellation and timeouts are reported in the result.
//
// Cancelling ctx, or reaching the workflow timeout, stops new batches, new
// dispatches and new retries. Tools already invoked finish under their own
// timeout and their outcome is recorded.
func (e *Executor) Run(ctx context.Context, job Job) *core.WorkflowResult {
	ws, plan := job.Spec, job.Plan
	state := job.State
	if state == nil {
		state = core.NewWorkflowRunState(job.ID, ws.Name)
	}

	if ws.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, ws.Timeout, core.ErrRunTimeout())
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		tracing.AttrRunID.String(job.ID),
		tracing.AttrWorkflow.String(ws.Name),
	))
	defer span.End()

	x := &execution{
		job:     job,
		state:   state,
		logger:  e.logger.WithRun(job.ID).WithWorkflow(ws.Name),
		blocked: make(map[string]string),
	}

	for _, name := range plan.Order() {
		state.Enter(name)
	}
	state.Start()
	e.metrics.RunStarted(ws.Name)
	e.bus.Publish(events.NewRunStartedEvent(job.ID, ws.Name, plan.Batches))
	x.logger.Info("run started", "tools", plan.Size(), "batches", len(plan.Batches))

	for i, batch := range plan.Batches {
		if ctx.Err() != nil {
			e.skipRemaining(ctx, x, plan.Batches[i:])
			break
		}
		e.runBatch(ctx, x, i, batch)
	}

	status := e.finalStatus(ctx, x)
	state.Finish(status)
	result := state.Freeze(plan)
	duration := time.Duration(result.DurationMS) * time.Millisecond

	span.SetAttributes(tracing.AttrStatus.String(string(status)))
	if status != core.WorkflowStatusCompleted {
		span.SetStatus(codes.Error, string(status))
	}
	e.metrics.RunFinished(ws.Name, string(status), duration)
	e.bus.PublishPriority(events.NewRunFinishedEvent(job.ID, ws.Name, string(status), duration, result.Errors))
	x.logger.Info("run finished",
		"status", status,
		"duration", duration,
		"completed", result.Count(core.ToolStatusCompleted),
		"failed", result.Count(core.ToolStatusFailed),
		"skipped", result.Count(core.ToolStatusSkipped),
	)
	return result
}

func (e *Executor) finalStatus(ctx context.Context, x *execution) core.WorkflowStatus {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return core.DeriveStatus(x.state.Counts())
	case core.IsCategory(cause, core.ErrCatTimeout) || errors.Is(cause, context.DeadlineExceeded):
		x.state.AddError(reasonOf(cause))
		return core.WorkflowStatusFailed
	default:
		x.state.AddError(reasonOf(cause))
		return core.WorkflowStatusCancelled
	}
}

func (e *Executor) runBatch(ctx context.Context, x *execution, index int, batch []string) {
	ctx, span := e.tracer.Start(ctx, "workflow.batch", trace.WithAttributes(
		tracing.AttrBatch.Int(index),
		attribute.StringSlice("toolflow.batch.tools", batch),
	))
	defer span.End()

	runnable := make([]string, 0, len(batch))
	for _, name := range batch {
		if ancestor, ok := x.blockedBy(name); ok {
			e.skip(x, name, upstreamReason(ancestor))
			continue
		}
		runnable = append(runnable, name)
	}
	if len(runnable) == 0 {
		return
	}
	e.bus.Publish(events.NewBatchStartedEvent(x.job.ID, x.job.Spec.Name, index, runnable))

	ws := x.job.Spec
	if !ws.AllowParallel || len(runnable) == 1 {
		for _, name := range runnable {
			e.dispatch(ctx, x, name)
		}
		return
	}

	// Tools never return errors to the group, so one failure cannot cancel
	// its siblings.
	var g errgroup.Group
	if ws.MaxParallelism > 0 {
		g.SetLimit(ws.MaxParallelism)
	}
	for _, name := range runnable {
		g.Go(func() error {
			e.dispatch(ctx, x, name)
			return nil
		})
	}
	_ = g.Wait()
}

// dispatch runs a tool unless the run has been stopped.
func (e *Executor) dispatch(ctx context.Context, x *execution, name string) {
	if ctx.Err() != nil {
		e.skip(x, name, reasonOf(context.Cause(ctx)))
		return
	}
	e.runTool(ctx, x, name)
}

func (e *Executor) skipRemaining(ctx context.Context, x *execution, batches [][]string) {
	reason := reasonOf(context.Cause(ctx))
	for _, batch := range batches {
		for _, name := range batch {
			if ancestor, ok := x.blockedBy(name); ok {
				e.skip(x, name, upstreamReason(ancestor))
				continue
			}
			e.skip(x, name, reason)
		}
	}
}

func (e *Executor) runTool(ctx context.Context, x *execution, name string) {
	ws := x.job.Spec
	tool, _ := ws.Tool(name)
	logger := x.logger.WithTool(name)

	ctx, span := e.tracer.Start(ctx, "workflow.tool", trace.WithAttributes(
		tracing.AttrTool.String(name),
		attribute.String("toolflow.tool.type", string(tool.Type)),
	))
	defer span.End()

	invoker, ok := x.job.Binding[name]
	if !ok || invoker == nil {
		e.failBeforeInvoke(x, name, span, core.ErrPlanning(core.CodeUnknownTool,
			fmt.Sprintf("no invoker bound for tool %q", name)))
		return
	}

	input, err := BuildInput(ws, tool, x.dependencyOutputs(tool))
	if err != nil {
		e.failBeforeInvoke(x, name, span, err)
		return
	}

	var iterations []core.IterationRecord
	if e.optimizer.Enabled(tool) {
		res := e.optimizer.OptimizeInput(tool, input, tool.Options)
		input, iterations = res.Record, res.Iterations
		e.metrics.Optimized(name, len(res.Iterations), res.FinalQuality-res.InitialQuality)
		e.bus.Publish(events.NewToolOptimizedEvent(x.job.ID, ws.Name, name,
			len(res.Iterations), res.InitialQuality, res.FinalQuality, res.Converged))
		logger.Debug("input optimized",
			"rounds", len(res.Iterations),
			"initial_quality", res.InitialQuality,
			"final_quality", res.FinalQuality,
			"converged", res.Converged,
		)
	}
	_ = x.state.Update(name, func(st *core.ToolExecutionState) error {
		st.Input = input
		st.Iterations = iterations
		return nil
	})

	policy := e.retry.ForTool(tool)
	outcome := policy.Do(ctx, func(attempt int) core.Outcome {
		if err := x.state.Update(name, (*core.ToolExecutionState).MarkRunning); err != nil {
			return core.Fatal(err)
		}
		span.AddEvent("attempt", trace.WithAttributes(tracing.AttrAttempt.Int(attempt+1)))
		e.bus.Publish(events.NewToolStartedEvent(x.job.ID, ws.Name, name, attempt+1))
		logger.Debug("attempt started", "attempt", attempt+1)
		return e.attempt(ctx, tool, invoker, input)
	}, func(next int, err error, delay time.Duration) {
		_ = x.state.Update(name, func(st *core.ToolExecutionState) error {
			return st.MarkRetrying(err)
		})
		e.metrics.ToolRetry(name)
		e.bus.Publish(events.NewToolRetryingEvent(x.job.ID, ws.Name, name, next, delay, err))
		logger.Warn("attempt failed, retrying", "attempt", next-1, "delay", delay, "error", err)
	})

	if outcome.Kind != core.OutcomeOK {
		e.fail(x, name, span, outcome.Err)
		return
	}

	output := outcome.Output
	if e.optimizer.Enabled(tool) && ctx.Err() == nil && e.optimizer.ShouldIterate(output) {
		output = e.correct(ctx, x, tool, invoker, input, output, logger)
	}

	var attempts int
	var duration time.Duration
	if err := x.state.Update(name, func(st *core.ToolExecutionState) error {
		if err := st.MarkCompleted(output); err != nil {
			return err
		}
		attempts, duration = st.Attempt, st.Duration()
		return nil
	}); err != nil {
		logger.Error("recording completion", "error", err)
		return
	}
	e.metrics.ToolFinished(name, string(core.ToolStatusCompleted))
	e.bus.Publish(events.NewToolCompletedEvent(x.job.ID, ws.Name, name, attempts, duration))
	logger.Info("tool completed", "attempts", attempts, "duration", duration)
}

// attempt performs one invocation. The call is detached from run
// cancellation and bounded only by the tool's timeout. An invoker that
// ignores its context is abandoned at the deadline; its late result is
// discarded.
func (e *Executor) attempt(ctx context.Context, tool core.ToolSpec, invoker core.Invoker, input map[string]any) (outcome core.Outcome) {
	callCtx := context.WithoutCancel(ctx)
	if tool.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, tool.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		e.metrics.ToolAttempt(tool.Name, outcome.Kind.String(), time.Since(start))
	}()

	type result struct {
		out    map[string]any
		err    error
		ctxErr error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: core.ErrToolFatal(tool.Name, fmt.Errorf("invoker panicked: %v", r))}
			}
		}()
		out, err := invoker.Invoke(callCtx, tool.Name, cloneRecord(input), tool.Options)
		done <- result{out: out, err: err, ctxErr: callCtx.Err()}
	}()

	select {
	case r := <-done:
		return core.Classify(tool.Name, r.out, r.err, r.ctxErr)
	case <-callCtx.Done():
		select {
		case r := <-done:
			return core.Classify(tool.Name, r.out, r.err, r.ctxErr)
		default:
		}
		return core.Classify(tool.Name, nil, nil, callCtx.Err())
	}
}

// correct runs the single corrective pass of a tool whose output looks
// deficient. The new output replaces the original only when it shows fewer
// problems.
func (e *Executor) correct(ctx context.Context, x *execution, tool core.ToolSpec, invoker core.Invoker,
	input, output map[string]any, logger *logging.Logger) map[string]any {
	reasons := e.optimizer.Diagnose(output)
	res := e.optimizer.IterateOnResult(tool, input, output)
	logger.Info("output needs correction", "reasons", reasons)

	o := e.attempt(ctx, tool, invoker, res.Record)
	accepted := o.Kind == core.OutcomeOK && len(e.optimizer.Diagnose(o.Output)) < len(reasons)

	_ = x.state.Update(tool.Name, func(st *core.ToolExecutionState) error {
		st.Iterations = append(st.Iterations, res.Iterations...)
		st.Corrected = accepted
		return nil
	})
	e.bus.Publish(events.NewToolCorrectedEvent(x.job.ID, x.job.Spec.Name, tool.Name, reasons, accepted))

	if !accepted {
		if o.Err != nil {
			logger.Warn("corrective pass failed, keeping original output", "error", o.Err)
		} else {
			logger.Debug("corrective pass not better, keeping original output")
		}
		return output
	}
	return o.Output
}

// failBeforeInvoke fails a tool that could not be invoked at all. The tool
// still passes through Running so the transition rules hold.
func (e *Executor) failBeforeInvoke(x *execution, name string, span trace.Span, err error) {
	_ = x.state.Update(name, (*core.ToolExecutionState).MarkRunning)
	e.fail(x, name, span, err)
}

func (e *Executor) fail(x *execution, name string, span trace.Span, err error) {
	var attempts int
	_ = x.state.Update(name, func(st *core.ToolExecutionState) error {
		attempts = st.Attempt
		return st.MarkFailed(err)
	})
	downstream := x.block(name)
	x.state.AddError(fmt.Sprintf("tool %q: %s", name, reasonOf(err)))

	span.RecordError(err)
	span.SetStatus(codes.Error, reasonOf(err))
	e.metrics.ToolFinished(name, string(core.ToolStatusFailed))
	e.bus.Publish(events.NewToolFailedEvent(x.job.ID, x.job.Spec.Name, name, attempts, err))
	x.logger.WithTool(name).Error("tool failed",
		"attempts", attempts,
		"error", err,
		"skipping", downstream,
	)
}

func (e *Executor) skip(x *execution, name, reason string) {
	if err := x.state.Update(name, func(st *core.ToolExecutionState) error {
		return st.MarkSkipped(reason)
	}); err != nil {
		return
	}
	e.metrics.ToolFinished(name, string(core.ToolStatusSkipped))
	e.bus.Publish(events.NewToolSkippedEvent(x.job.ID, x.job.Spec.Name, name, reason))
	x.logger.WithTool(name).Info("tool skipped", "reason", reason)
}

func upstreamReason(ancestor string) string {
	return fmt.Sprintf("upstream tool %q failed", ancestor)
}

// reasonOf renders an error for humans, preferring a DomainError's message.
func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		if domErr.Cause != nil {
			return fmt.Sprintf("%s: %v", domErr.Message, domErr.Cause)
		}
		return domErr.Message
	}
	return err.Error()
}
