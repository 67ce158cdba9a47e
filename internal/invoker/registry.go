// Package invoker provides the adapters that execute tools: a name-keyed
// Registry, HTTP and command transports, and rate-limiting and tracing
// wrappers.
package invoker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

// Registry maps tool names to the invokers that run them.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]core.Invoker
	fallback core.Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[string]core.Invoker),
	}
}

// Register adds or replaces the invoker of a tool.
func (r *Registry) Register(name string, inv core.Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[name] = inv
}

// SetFallback sets the invoker used for tools with no registration of their
// own, typically a gateway that dispatches on the tool name.
func (r *Registry) SetFallback(inv core.Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Get returns the invoker of a tool.
func (r *Registry) Get(name string) (core.Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

func (r *Registry) lookupLocked(name string) (core.Invoker, error) {
	if inv, ok := r.invokers[name]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	msg := fmt.Sprintf("no invoker registered for tool %q", name)
	if hint := spec.Suggest(name, r.namesLocked()); hint != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", hint)
	}
	return nil, core.ErrPlanning(core.CodeUnknownTool, msg).WithDetail("tool", name)
}

// Has reports whether a tool can be resolved.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind resolves every tool of ws once, before the run starts. All unknown
// tools are reported together.
func (r *Registry) Bind(ws *core.WorkflowSpec) (core.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding := make(core.Binding, len(ws.Tools))
	var problems spec.Problems
	for _, t := range ws.Tools {
		inv, err := r.lookupLocked(t.Name)
		if err != nil {
			problems = append(problems, err.(*core.DomainError))
			continue
		}
		binding[t.Name] = inv
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return binding, nil
}
