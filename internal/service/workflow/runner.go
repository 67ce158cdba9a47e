// Package workflow executes planned workflows: the Executor drives one run
// batch by batch, the Optimizer refines tool inputs and outputs, and the
// Runner owns the registry of runs and their cancellation.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/toolflow/internal/control"
	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/metrics"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

// Binder resolves the invoker of every tool in a workflow.
type Binder interface {
	Bind(ws *core.WorkflowSpec) (core.Binding, error)
}

// RunnerConfig holds configuration for the workflow runner.
type RunnerConfig struct {
	// MaxConcurrentRuns caps runs executing at once. Zero means no cap.
	MaxConcurrentRuns int64
	// MaxRetainedRuns caps finished runs kept for lookup; the oldest are
	// evicted first. Zero keeps every run.
	MaxRetainedRuns int
}

// DefaultRunnerConfig returns default configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxConcurrentRuns: 8,
		MaxRetainedRuns:   100,
	}
}

// RunnerDeps holds the runner dependencies.
type RunnerDeps struct {
	Config   RunnerConfig
	Executor *Executor
	Binder   Binder
	Plans    *service.PlanCache
	Bus      *events.EventBus
	Metrics  metrics.Recorder
	Logger   *logging.Logger
}

// Runner validates, plans and executes workflows, and keeps track of the
// runs it started so they can be inspected and cancelled.
type Runner struct {
	config   RunnerConfig
	executor *Executor
	binder   Binder
	plans    *service.PlanCache
	bus      *events.EventBus
	metrics  metrics.Recorder
	logger   *logging.Logger
	sem      *semaphore.Weighted

	mu    sync.RWMutex
	runs  map[string]*runHandle
	order []string
	wg    sync.WaitGroup
}

type runHandle struct {
	id       string
	workflow string
	plan     *core.ExecutionPlan
	state    *core.WorkflowRunState
	control  *control.ControlPlane
	result   atomic.Pointer[core.WorkflowResult]
}

// NewRunner creates a new workflow runner.
func NewRunner(deps RunnerDeps) (*Runner, error) {
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.Binder == nil {
		return nil, fmt.Errorf("binder is required")
	}
	if deps.Plans == nil {
		deps.Plans = service.NewPlanCache()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	r := &Runner{
		config:   deps.Config,
		executor: deps.Executor,
		binder:   deps.Binder,
		plans:    deps.Plans,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		runs:     make(map[string]*runHandle),
	}
	if deps.Config.MaxConcurrentRuns > 0 {
		r.sem = semaphore.NewWeighted(deps.Config.MaxConcurrentRuns)
	}
	return r, nil
}

// Plan validates ws, binds its tools and returns its execution plan without
// running anything.
func (r *Runner) Plan(ws *core.WorkflowSpec) (*core.ExecutionPlan, error) {
	plan, _, err := r.prepare("", ws)
	return plan, err
}

// prepare runs every check that must pass before a tool is invoked.
func (r *Runner) prepare(path string, ws *core.WorkflowSpec) (*core.ExecutionPlan, core.Binding, error) {
	if err := spec.Validate(ws); err != nil {
		return nil, nil, err
	}
	binding, err := r.binder.Bind(ws)
	if err != nil {
		return nil, nil, err
	}
	plan, hit, err := r.plans.Lookup(path, ws)
	if err != nil {
		return nil, nil, err
	}
	r.metrics.PlanCache(hit)
	return plan, binding, nil
}

// Start validates and plans ws, then executes it in the background. The
// run outlives ctx; use Cancel to stop it. Validation and planning errors
// are returned directly and no run is registered.
func (r *Runner) Start(ctx context.Context, ws *core.WorkflowSpec) (string, error) {
	return r.StartFrom(ctx, "", ws)
}

// StartFrom is Start for a workflow loaded from path, so its cached plan is
// dropped when the file changes.
func (r *Runner) StartFrom(ctx context.Context, path string, ws *core.WorkflowSpec) (string, error) {
	plan, binding, err := r.prepare(path, ws)
	if err != nil {
		return "", err
	}
	if r.sem != nil && !r.sem.TryAcquire(1) {
		return "", core.ErrConflict(core.CodeRunLimitReached,
			fmt.Sprintf("%d runs already in progress", r.config.MaxConcurrentRuns))
	}

	runCtx, cp := control.New(context.WithoutCancel(ctx))
	h := r.register(ws, plan, cp)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(runCtx, h, ws, binding)
		if r.sem != nil {
			r.sem.Release(1)
		}
		h.control.Finish()
	}()
	return h.id, nil
}

// RunSpec validates, plans and executes ws synchronously. Problems found
// before execution produce a Failed result listing them.
func (r *Runner) RunSpec(ctx context.Context, ws *core.WorkflowSpec) *core.WorkflowResult {
	plan, binding, err := r.prepare("", ws)
	if err != nil {
		return failedResult(uuid.NewString(), ws, err)
	}
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return failedResult(uuid.NewString(), ws, err)
		}
		defer r.sem.Release(1)
	}

	runCtx, cp := control.New(ctx)
	h := r.register(ws, plan, cp)
	defer cp.Finish()
	return r.execute(runCtx, h, ws, binding)
}

func (r *Runner) register(ws *core.WorkflowSpec, plan *core.ExecutionPlan, cp *control.ControlPlane) *runHandle {
	id := uuid.NewString()
	h := &runHandle{
		id:       id,
		workflow: ws.Name,
		plan:     plan,
		state:    core.NewWorkflowRunState(id, ws.Name),
		control:  cp,
	}

	r.mu.Lock()
	r.runs[id] = h
	r.order = append(r.order, id)
	r.evictLocked()
	r.mu.Unlock()

	r.logger.WithRun(id).Debug("run registered", "workflow", ws.Name)
	return h
}

// execute runs the job and stores its result. Callers finish the control
// plane once the run's resources are released.
func (r *Runner) execute(ctx context.Context, h *runHandle, ws *core.WorkflowSpec, binding core.Binding) *core.WorkflowResult {
	result := r.executor.Run(ctx, Job{
		ID:      h.id,
		Spec:    ws,
		Plan:    h.plan,
		Binding: binding,
		State:   h.state,
	})
	h.result.Store(result)
	return result
}

// evictLocked drops the oldest finished runs beyond the retention cap.
func (r *Runner) evictLocked() {
	limit := r.config.MaxRetainedRuns
	if limit <= 0 || len(r.order) <= limit {
		return
	}
	excess := len(r.order) - limit
	kept := r.order[:0]
	for _, id := range r.order {
		if excess > 0 && r.runs[id].control.IsFinished() {
			delete(r.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

func (r *Runner) handle(runID string) (*runHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.runs[runID]
	if !ok {
		return nil, core.ErrNotFound("run", runID)
	}
	return h, nil
}

// Cancel requests cancellation of a run. It returns once the request is
// recorded, not when the run has stopped; use Wait for that.
func (r *Runner) Cancel(runID string) error {
	h, err := r.handle(runID)
	if err != nil {
		return err
	}
	if err := h.control.Cancel(); err != nil {
		return err
	}
	r.bus.Publish(events.NewRunCancelRequestedEvent(h.id, h.workflow))
	r.logger.WithRun(h.id).Info("run cancellation requested", "workflow", h.workflow)
	return nil
}

// Get returns the final result of a finished run, or a snapshot of a run
// still in progress.
func (r *Runner) Get(runID string) (*core.WorkflowResult, error) {
	h, err := r.handle(runID)
	if err != nil {
		return nil, err
	}
	if res := h.result.Load(); res != nil {
		return res, nil
	}
	return h.state.Freeze(h.plan), nil
}

// Wait blocks until the run finishes and returns its result.
func (r *Runner) Wait(ctx context.Context, runID string) (*core.WorkflowResult, error) {
	h, err := r.handle(runID)
	if err != nil {
		return nil, err
	}
	if err := h.control.Wait(ctx); err != nil {
		return nil, err
	}
	return h.result.Load(), nil
}

// List returns every retained run in start order.
func (r *Runner) List() []core.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RunSummary, 0, len(r.order))
	for _, id := range r.order {
		h := r.runs[id]
		status := h.state.CurrentStatus()
		if res := h.result.Load(); res != nil {
			status = res.Status
		}
		out = append(out, core.RunSummary{RunID: id, Workflow: h.workflow, Status: status})
	}
	return out
}

// Shutdown cancels every run in progress and waits for background runs to
// finish or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	active := make([]*runHandle, 0, len(r.runs))
	for _, h := range r.runs {
		if !h.control.IsFinished() {
			active = append(active, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range active {
		_ = h.control.Cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failedResult reports a run that failed before any tool ran. Every declared
// tool is listed as skipped.
func failedResult(runID string, ws *core.WorkflowSpec, err error) *core.WorkflowResult {
	name := ""
	if ws != nil {
		name = ws.Name
	}
	state := core.NewWorkflowRunState(runID, name)
	state.Start()
	if ws != nil {
		for _, t := range ws.Tools {
			if t.Name == "" {
				continue
			}
			state.Enter(t.Name)
			_ = state.Update(t.Name, func(st *core.ToolExecutionState) error {
				return st.MarkSkipped("workflow failed before execution")
			})
		}
	}
	state.AddError(err.Error())
	state.Finish(core.WorkflowStatusFailed)
	return state.Freeze(nil)
}

var _ core.RunController = (*Runner)(nil)
