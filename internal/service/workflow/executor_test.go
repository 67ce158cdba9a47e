package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
	"github.com/hugo-lorenzo-mato/toolflow/internal/testutil"
)

func fastRetry() *service.RetryPolicy {
	return service.NewRetryPolicy(
		service.WithBaseDelay(time.Millisecond),
		service.WithMaxDelay(5*time.Millisecond),
	)
}

func newExecutor(opts ...ExecutorOption) *Executor {
	return NewExecutor(append([]ExecutorOption{WithRetryPolicy(fastRetry())}, opts...)...)
}

func run(t *testing.T, ctx context.Context, e *Executor, ws *core.WorkflowSpec, mock *testutil.MockInvoker) *core.WorkflowResult {
	t.Helper()
	plan, err := service.Plan(ws)
	require.NoError(t, err)
	binding, err := mock.Bind(ws)
	require.NoError(t, err)
	return e.Run(ctx, Job{ID: "run-1", Spec: ws, Plan: plan, Binding: binding})
}

func fatal(tool string) error {
	return core.ErrToolFatal(tool, errors.New("bad request"))
}

func TestExecutor_CompletesPipeline(t *testing.T) {
	mock := testutil.NewMockInvoker()
	ws := testutil.FetchSummarizeReport()

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusCompleted, res.Status)
	assert.Equal(t, [][]string{{"fetch"}, {"summarize"}, {"report"}}, res.Plan)
	assert.Empty(t, res.Errors)
	for _, name := range []string{"fetch", "summarize", "report"} {
		tr := res.Tools[name]
		assert.Equal(t, core.ToolStatusCompleted, tr.Status, name)
		assert.Equal(t, 1, tr.Attempts, name)
		assert.NotNil(t, tr.StartedAt, name)
		assert.NotNil(t, tr.CompletedAt, name)
	}

	input := mock.CallsFor("report")[0].Input
	assert.Equal(t, "summarize finished its analysis of the input", input["summarize_analysis"])
	assert.Equal(t, []any{"summarize insight"}, input["insights"])
	assert.NotContains(t, input, "fetch_output", "only direct dependencies are projected")
}

func TestExecutor_FailureSkipsDownstream(t *testing.T) {
	mock := testutil.NewMockInvoker().WithError("summarize", errors.New("boom"))
	ws := testutil.FetchSummarizeReport()

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusPartial, res.Status)
	assert.Equal(t, core.ToolStatusCompleted, res.Tools["fetch"].Status)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["summarize"].Status)
	assert.Contains(t, res.Tools["summarize"].Error, "boom")

	report := res.Tools["report"]
	assert.Equal(t, core.ToolStatusSkipped, report.Status)
	assert.Equal(t, `upstream tool "summarize" failed`, report.SkipReason)
	assert.Zero(t, report.Attempts)
	assert.Zero(t, mock.CallCount("report"))

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `tool "summarize"`)
}

func TestExecutor_SkipsTransitiveDependents(t *testing.T) {
	mock := testutil.NewMockInvoker().WithError("a", fatal("a"))
	ws := testutil.NewTestWorkflow([]core.ToolSpec{
		testutil.Tool("a"),
		testutil.Tool("c", "a"),
		testutil.Tool("b", "c"),
	})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusFailed, res.Status)
	for _, name := range []string{"b", "c"} {
		assert.Equal(t, core.ToolStatusSkipped, res.Tools[name].Status, name)
		assert.Equal(t, `upstream tool "a" failed`, res.Tools[name].SkipReason, name)
		assert.Zero(t, mock.CallCount(name), name)
	}
}

func TestExecutor_RunsBatchInParallel(t *testing.T) {
	mock := testutil.NewMockInvoker().
		WithDelay("left", 50*time.Millisecond).
		WithDelay("right", 50*time.Millisecond)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("left"), testutil.Tool("right")})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	require.Equal(t, core.WorkflowStatusCompleted, res.Status)
	left, right := mock.CallsFor("left")[0], mock.CallsFor("right")[0]
	assert.True(t, left.Start.Before(right.End), "left should start before right ends")
	assert.True(t, right.Start.Before(left.End), "right should start before left ends")

	l, r := res.Tools["left"], res.Tools["right"]
	require.NotNil(t, l.StartedAt)
	require.NotNil(t, l.CompletedAt)
	require.NotNil(t, r.StartedAt)
	require.NotNil(t, r.CompletedAt)
	assert.True(t, l.StartedAt.Before(*r.CompletedAt), "recorded windows should overlap")
	assert.True(t, r.StartedAt.Before(*l.CompletedAt), "recorded windows should overlap")
}

func TestExecutor_SequentialWhenParallelDisabled(t *testing.T) {
	mock := testutil.NewMockInvoker().
		WithDelay("left", 20*time.Millisecond).
		WithDelay("right", 20*time.Millisecond)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("left"), testutil.Tool("right")}, testutil.Sequential)

	res := run(t, context.Background(), newExecutor(), ws, mock)

	require.Equal(t, core.WorkflowStatusCompleted, res.Status)
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "left", calls[0].Tool, "declaration order is kept")
	assert.False(t, calls[1].Start.Before(calls[0].End), "calls must not overlap")
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	mock := testutil.NewMockInvoker().WithFailures("fetch", 2, errors.New("flaky"))
	tool := testutil.Tool("fetch")
	tool.MaxRetries = 2
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusCompleted, res.Status)
	assert.Equal(t, 3, res.Tools["fetch"].Attempts)
	assert.Equal(t, 3, mock.CallCount("fetch"))
}

func TestExecutor_ExhaustedRetriesFail(t *testing.T) {
	mock := testutil.NewMockInvoker().WithError("fetch", errors.New("flaky"))
	tool := testutil.Tool("fetch")
	tool.MaxRetries = 1
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusFailed, res.Status)
	assert.Equal(t, 2, res.Tools["fetch"].Attempts)
	assert.Contains(t, res.Tools["fetch"].Error, "retry exhausted after 2 attempts")
}

func TestExecutor_FatalErrorStopsRetries(t *testing.T) {
	mock := testutil.NewMockInvoker().WithError("fetch", fatal("fetch"))
	tool := testutil.Tool("fetch")
	tool.MaxRetries = 3
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.ToolStatusFailed, res.Tools["fetch"].Status)
	assert.Equal(t, 1, res.Tools["fetch"].Attempts)
	assert.Equal(t, 1, mock.CallCount("fetch"))
}

func TestExecutor_ToolTimeoutIsRetried(t *testing.T) {
	mock := testutil.NewMockInvoker().WithDelay("slow", time.Second)
	tool := testutil.Tool("slow")
	tool.Timeout = 10 * time.Millisecond
	tool.MaxRetries = 1
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	start := time.Now()
	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["slow"].Status)
	assert.Equal(t, 2, res.Tools["slow"].Attempts)
	assert.Contains(t, res.Tools["slow"].Error, "timed out")
}

func TestExecutor_TimeoutFailsToolThatIgnoresContext(t *testing.T) {
	inv := core.InvokerFunc(func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
		time.Sleep(400 * time.Millisecond)
		return map[string]any{"analysis": "late"}, nil
	})
	tool := testutil.Tool("slow")
	tool.Timeout = 50 * time.Millisecond
	tool.MaxRetries = 0
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})
	plan, err := service.Plan(ws)
	require.NoError(t, err)

	start := time.Now()
	res := newExecutor().Run(context.Background(), Job{ID: "run-1", Spec: ws, Plan: plan, Binding: core.Binding{"slow": inv}})

	assert.Less(t, time.Since(start), 300*time.Millisecond, "late invoker must be abandoned at the deadline")
	assert.Equal(t, core.WorkflowStatusFailed, res.Status)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["slow"].Status)
	assert.Equal(t, 1, res.Tools["slow"].Attempts)
	assert.Contains(t, res.Tools["slow"].Error, "timed out")
	assert.Nil(t, res.Tools["slow"].Output)
}

func TestExecutor_SiblingFailureDoesNotCancelBatch(t *testing.T) {
	mock := testutil.NewMockInvoker().
		WithError("a", fatal("a")).
		WithDelay("b", 30*time.Millisecond)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("a"), testutil.Tool("b")})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusPartial, res.Status)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["a"].Status)
	assert.Equal(t, core.ToolStatusCompleted, res.Tools["b"].Status)
}

func TestExecutor_CancelLetsInFlightToolFinish(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	mock := testutil.NewMockInvoker().WithFunc("fetch", func(callCtx context.Context, _ map[string]any) (map[string]any, error) {
		cancel(core.ErrCancelled())
		select {
		case <-time.After(30 * time.Millisecond):
		case <-callCtx.Done():
			return nil, callCtx.Err()
		}
		return map[string]any{core.KeyAnalysis: "fetched every page of the status site"}, nil
	})
	ws := testutil.FetchSummarizeReport()

	res := run(t, ctx, newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusCancelled, res.Status)
	assert.Equal(t, core.ToolStatusCompleted, res.Tools["fetch"].Status, "in-flight call is not interrupted")
	for _, name := range []string{"summarize", "report"} {
		assert.Equal(t, core.ToolStatusSkipped, res.Tools[name].Status, name)
		assert.Equal(t, "workflow run cancelled", res.Tools[name].SkipReason, name)
	}
	assert.Contains(t, res.Errors, "workflow run cancelled")
}

func TestExecutor_CancelSkipsUndispatchedSibling(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	stop := func(context.Context, map[string]any) (map[string]any, error) {
		cancel(core.ErrCancelled())
		return map[string]any{core.KeyAnalysis: "done"}, nil
	}
	mock := testutil.NewMockInvoker().WithFunc("a", stop).WithFunc("b", stop)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("a"), testutil.Tool("b")}, func(ws *core.WorkflowSpec) {
		ws.MaxParallelism = 1
	})

	res := run(t, ctx, newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusCancelled, res.Status)
	assert.Len(t, mock.Calls(), 1)
	assert.Equal(t, 1, res.Count(core.ToolStatusCompleted))
	assert.Equal(t, 1, res.Count(core.ToolStatusSkipped))
}

func TestExecutor_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	mock := testutil.NewMockInvoker().WithFunc("fetch", func(context.Context, map[string]any) (map[string]any, error) {
		cancel(core.ErrCancelled())
		return nil, errors.New("flaky")
	})
	tool := testutil.Tool("fetch")
	tool.MaxRetries = 3
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool, testutil.Tool("report", "fetch")})
	e := NewExecutor(WithRetryPolicy(service.NewRetryPolicy(service.WithBaseDelay(time.Second))))

	start := time.Now()
	res := run(t, ctx, e, ws, mock)

	assert.Less(t, time.Since(start), 500*time.Millisecond, "backoff wait must end on cancel")
	assert.Equal(t, core.WorkflowStatusCancelled, res.Status)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["fetch"].Status)
	assert.Equal(t, 1, mock.CallCount("fetch"))
	assert.Contains(t, res.Tools["fetch"].Error, "workflow run cancelled")
	assert.Equal(t, core.ToolStatusSkipped, res.Tools["report"].Status)
}

func TestExecutor_RunTimeoutFailsRun(t *testing.T) {
	mock := testutil.NewMockInvoker().WithDelay("fetch", 100*time.Millisecond)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{
		testutil.Tool("fetch"),
		testutil.Tool("report", "fetch"),
	}, func(ws *core.WorkflowSpec) {
		ws.Timeout = 30 * time.Millisecond
	})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.WorkflowStatusFailed, res.Status)
	assert.Equal(t, core.ToolStatusCompleted, res.Tools["fetch"].Status)
	assert.Equal(t, core.ToolStatusSkipped, res.Tools["report"].Status)
	assert.Equal(t, "workflow run timed out", res.Tools["report"].SkipReason)
	assert.Contains(t, res.Errors, "workflow run timed out")
}

func TestExecutor_EmptyWorkflowCompletes(t *testing.T) {
	ws := testutil.NewTestWorkflow(nil)

	res := run(t, context.Background(), newExecutor(), ws, testutil.NewMockInvoker())

	assert.Equal(t, core.WorkflowStatusCompleted, res.Status)
	assert.Empty(t, res.Tools)
}

func TestExecutor_UnboundToolFails(t *testing.T) {
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("fetch"), testutil.Tool("report", "fetch")})
	plan, err := service.Plan(ws)
	require.NoError(t, err)

	res := newExecutor().Run(context.Background(), Job{ID: "run-1", Spec: ws, Plan: plan, Binding: core.Binding{}})

	assert.Equal(t, core.WorkflowStatusFailed, res.Status)
	assert.Equal(t, core.ToolStatusFailed, res.Tools["fetch"].Status)
	assert.Equal(t, 1, res.Tools["fetch"].Attempts)
	assert.Contains(t, res.Tools["fetch"].Error, "no invoker bound")
	assert.Equal(t, core.ToolStatusSkipped, res.Tools["report"].Status)
}

func TestExecutor_InvokerPanicIsFatal(t *testing.T) {
	mock := testutil.NewMockInvoker().WithFunc("fetch", func(context.Context, map[string]any) (map[string]any, error) {
		panic("nil map")
	})
	tool := testutil.Tool("fetch")
	tool.MaxRetries = 2
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	res := run(t, context.Background(), newExecutor(), ws, mock)

	assert.Equal(t, core.ToolStatusFailed, res.Tools["fetch"].Status)
	assert.Equal(t, 1, res.Tools["fetch"].Attempts)
	assert.Contains(t, res.Tools["fetch"].Error, "invoker panicked: nil map")
}

func TestExecutor_PublishesEventsInOrder(t *testing.T) {
	bus := events.New(100)
	defer bus.Close()
	ch := bus.Subscribe()

	mock := testutil.NewMockInvoker()
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("fetch"), testutil.Tool("report", "fetch")})

	run(t, context.Background(), newExecutor(WithEventBus(bus)), ws, mock)

	var got []string
	for done := false; !done; {
		select {
		case e := <-ch:
			got = append(got, e.EventType())
		default:
			done = true
		}
	}
	assert.Equal(t, []string{
		events.TypeRunStarted,
		events.TypeBatchStarted, events.TypeToolStarted, events.TypeToolCompleted,
		events.TypeBatchStarted, events.TypeToolStarted, events.TypeToolCompleted,
		events.TypeRunFinished,
	}, got)
}

func TestExecutor_SpansFollowRunStructure(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	mock := testutil.NewMockInvoker()
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("fetch"), testutil.Tool("report", "fetch")})

	run(t, context.Background(), newExecutor(WithTracer(tp.Tracer("toolflow-test"))), ws, mock)

	ids := make(map[string][]string)
	parents := make(map[string][]string)
	for _, s := range sr.Ended() {
		ids[s.Name()] = append(ids[s.Name()], s.SpanContext().SpanID().String())
		parents[s.Name()] = append(parents[s.Name()], s.Parent().SpanID().String())
	}
	require.Len(t, ids["workflow.run"], 1)
	require.Len(t, ids["workflow.batch"], 2)
	require.Len(t, ids["workflow.tool"], 2)

	for _, p := range parents["workflow.batch"] {
		assert.Equal(t, ids["workflow.run"][0], p)
	}
	for _, p := range parents["workflow.tool"] {
		assert.Contains(t, ids["workflow.batch"], p)
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  int
	finished []string
	retries  int
	attempts []string
	tools    map[string]string
}

func (m *recordingMetrics) RunStarted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) RunFinished(_, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
}

func (m *recordingMetrics) ToolAttempt(_, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, outcome)
}

func (m *recordingMetrics) ToolFinished(tool, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tools == nil {
		m.tools = make(map[string]string)
	}
	m.tools[tool] = status
}

func (m *recordingMetrics) ToolRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) Optimized(string, int, float64) {}
func (m *recordingMetrics) PlanCache(bool)                 {}

func TestExecutor_RecordsMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	mock := testutil.NewMockInvoker().WithFailures("fetch", 1, errors.New("flaky"))
	fetch := testutil.Tool("fetch")
	fetch.MaxRetries = 1
	ws := testutil.NewTestWorkflow([]core.ToolSpec{fetch, testutil.Tool("report", "fetch")})

	run(t, context.Background(), newExecutor(WithMetrics(rec)), ws, mock)

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, []string{string(core.WorkflowStatusCompleted)}, rec.finished)
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, []string{"retryable", "ok", "ok"}, rec.attempts)
	assert.Equal(t, map[string]string{"fetch": "completed", "report": "completed"}, rec.tools)
}

func TestExecutor_OptimizesPromptBasedInput(t *testing.T) {
	mock := testutil.NewMockInvoker()
	tool := promptTool("review")
	ws := testutil.NewTestWorkflow([]core.ToolSpec{tool})

	res := run(t, context.Background(), newExecutor(WithOptimizer(NewOptimizer(DefaultOptimizerConfig()))), ws, mock)

	require.Equal(t, core.WorkflowStatusCompleted, res.Status)
	assert.Contains(t, mock.CallsFor("review")[0].Input["problem"], "Constraints:")
	require.Len(t, res.Tools["review"].Iterations, 1)
	assert.Equal(t, core.StrategyConstraintRefinement, res.Tools["review"].Iterations[0].Strategy)
	assert.Equal(t, 1, mock.CallCount("review"), "an acceptable output gets no corrective pass")
}

func TestExecutor_AnalysisToolIsNotOptimized(t *testing.T) {
	mock := testutil.NewMockInvoker().WithOutput("fetch", map[string]any{core.KeyAnalysis: "ok"})
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("fetch")})

	res := run(t, context.Background(), newExecutor(WithOptimizer(NewOptimizer(DefaultOptimizerConfig()))), ws, mock)

	assert.Empty(t, res.Tools["fetch"].Iterations)
	assert.Equal(t, 1, mock.CallCount("fetch"))
	assert.Equal(t, "Review the payment service for reliability issues", mock.Calls()[0].Input["problem"])
}

func TestExecutor_CorrectivePassAccepted(t *testing.T) {
	good := map[string]any{core.KeyAnalysis: "The payment service retries are unbounded and need a cap."}
	mock := testutil.NewMockInvoker().WithFunc("review", func(_ context.Context, input map[string]any) (map[string]any, error) {
		if _, ok := input["feedback"]; ok {
			return good, nil
		}
		return map[string]any{core.KeyAnalysis: "ok"}, nil
	})
	ws := testutil.NewTestWorkflow([]core.ToolSpec{promptTool("review")})

	res := run(t, context.Background(), newExecutor(WithOptimizer(NewOptimizer(DefaultOptimizerConfig()))), ws, mock)

	tr := res.Tools["review"]
	assert.Equal(t, core.ToolStatusCompleted, tr.Status)
	assert.True(t, tr.Corrected)
	assert.Equal(t, good, tr.Output)
	assert.Equal(t, 1, tr.Attempts, "the corrective pass is not a retry")
	assert.Equal(t, 2, mock.CallCount("review"))

	second := mock.CallsFor("review")[1].Input
	assert.Equal(t, map[string]any{core.KeyAnalysis: "ok"}, second["previous_output"])
}

func TestExecutor_CorrectivePassRejected(t *testing.T) {
	weak := map[string]any{core.KeyAnalysis: "ok"}
	mock := testutil.NewMockInvoker().WithOutput("review", weak)
	ws := testutil.NewTestWorkflow([]core.ToolSpec{promptTool("review")})

	res := run(t, context.Background(), newExecutor(WithOptimizer(NewOptimizer(DefaultOptimizerConfig()))), ws, mock)

	tr := res.Tools["review"]
	assert.Equal(t, core.ToolStatusCompleted, tr.Status)
	assert.False(t, tr.Corrected)
	assert.Equal(t, weak, tr.Output)
	assert.Equal(t, 2, mock.CallCount("review"))
}

func TestExecutor_ObservableState(t *testing.T) {
	state := core.NewWorkflowRunState("run-1", "test-workflow")
	seen := make(chan core.ToolStatus, 1)
	mock := testutil.NewMockInvoker().WithFunc("fetch", func(context.Context, map[string]any) (map[string]any, error) {
		st, _ := state.Tool("fetch")
		seen <- st.Status
		return nil, nil
	})
	ws := testutil.NewTestWorkflow([]core.ToolSpec{testutil.Tool("fetch")})
	plan, err := service.Plan(ws)
	require.NoError(t, err)
	binding, _ := mock.Bind(ws)

	res := newExecutor().Run(context.Background(), Job{ID: "run-1", Spec: ws, Plan: plan, Binding: binding, State: state})

	assert.Equal(t, core.ToolStatusRunning, <-seen)
	assert.Equal(t, core.WorkflowStatusCompleted, res.Status)
	assert.Equal(t, map[string]any{}, res.Tools["fetch"].Output, "a nil output is recorded as empty")
}
