package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// MockCall records one invocation.
type MockCall struct {
	Tool    string
	Attempt int // 1-based per tool
	Input   map[string]any
	Config  map[string]any
	Start   time.Time
	End     time.Time
	Err     error
}

// MockInvoker is a scriptable core.Invoker that records every call with
// its start and end time.
type MockInvoker struct {
	mu        sync.Mutex
	calls     []MockCall
	outputs   map[string]map[string]any
	errs      map[string]error
	failTimes map[string]int
	delays    map[string]time.Duration
	funcs     map[string]func(context.Context, map[string]any) (map[string]any, error)
}

// NewMockInvoker creates a mock that succeeds for every tool with a default
// analysis output.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		outputs:   make(map[string]map[string]any),
		errs:      make(map[string]error),
		failTimes: make(map[string]int),
		delays:    make(map[string]time.Duration),
		funcs:     make(map[string]func(context.Context, map[string]any) (map[string]any, error)),
	}
}

// WithOutput sets the output returned for tool.
func (m *MockInvoker) WithOutput(tool string, output map[string]any) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[tool] = output
	return m
}

// WithError makes every call to tool fail with err.
func (m *MockInvoker) WithError(tool string, err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[tool] = err
	m.failTimes[tool] = -1
	return m
}

// WithFailures makes the first n calls to tool fail with err.
func (m *MockInvoker) WithFailures(tool string, n int, err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[tool] = err
	m.failTimes[tool] = n
	return m
}

// WithDelay makes calls to tool take d, or until the call's context ends.
func (m *MockInvoker) WithDelay(tool string, d time.Duration) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[tool] = d
	return m
}

// WithFunc replaces the behavior of tool entirely.
func (m *MockInvoker) WithFunc(tool string, fn func(context.Context, map[string]any) (map[string]any, error)) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[tool] = fn
	return m
}

// Invoke implements core.Invoker.
func (m *MockInvoker) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	start := time.Now()

	m.mu.Lock()
	attempt := 1
	for _, c := range m.calls {
		if c.Tool == tool {
			attempt++
		}
	}
	delay := m.delays[tool]
	fn := m.funcs[tool]
	output, hasOutput := m.outputs[tool]
	err := m.errs[tool]
	fail := err != nil && (m.failTimes[tool] < 0 || attempt <= m.failTimes[tool])
	m.mu.Unlock()

	var out map[string]any
	var callErr error
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			callErr = ctx.Err()
		}
	}

	switch {
	case callErr != nil:
	case fn != nil:
		out, callErr = fn(ctx, input)
	case fail:
		callErr = err
	case hasOutput:
		out = output
	default:
		out = map[string]any{
			core.KeyAnalysis: fmt.Sprintf("%s finished its analysis of the input", tool),
			core.KeyInsights: []any{tool + " insight"},
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		Tool:    tool,
		Attempt: attempt,
		Input:   input,
		Config:  config,
		Start:   start,
		End:     time.Now(),
		Err:     callErr,
	})
	m.mu.Unlock()
	return out, callErr
}

// Bind binds every tool of ws to the mock.
func (m *MockInvoker) Bind(ws *core.WorkflowSpec) (core.Binding, error) {
	binding := make(core.Binding, len(ws.Tools))
	for _, t := range ws.Tools {
		binding[t.Name] = m
	}
	return binding, nil
}

// Calls returns all recorded calls in completion order.
func (m *MockInvoker) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsFor returns the calls made to tool.
func (m *MockInvoker) CallsFor(tool string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.calls {
		if c.Tool == tool {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times tool was invoked.
func (m *MockInvoker) CallCount(tool string) int {
	return len(m.CallsFor(tool))
}

// Tools returns the names of invoked tools, sorted and deduplicated.
func (m *MockInvoker) Tools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, c := range m.calls {
		if !seen[c.Tool] {
			seen[c.Tool] = true
			out = append(out, c.Tool)
		}
	}
	sort.Strings(out)
	return out
}

// Reset clears recorded calls.
func (m *MockInvoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
