package service

import (
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// DAGBuilder constructs and validates a tool dependency graph.
type DAGBuilder struct {
	order   []string            // declaration order
	tools   map[string]bool     // known tools
	edges   map[string][]string // tool -> dependencies
	reverse map[string][]string // tool -> dependents
	mu      sync.RWMutex
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		tools:   make(map[string]bool),
		edges:   make(map[string][]string),
		reverse: make(map[string][]string),
	}
}

// AddTool adds a tool to the DAG.
func (d *DAGBuilder) AddTool(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tools[name] {
		return core.ErrPlanning(core.CodeDuplicateTool, fmt.Sprintf("tool %q is declared more than once", name)).
			WithDetail("tool", name)
	}

	d.tools[name] = true
	d.order = append(d.order, name)
	d.edges[name] = make([]string, 0)
	d.reverse[name] = make([]string, 0)
	return nil
}

// AddDependency records that tool depends on dependency.
func (d *DAGBuilder) AddDependency(tool, dependency string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.tools[tool] {
		return core.ErrNotFound("tool", tool)
	}
	if tool == dependency {
		return core.ErrPlanning(core.CodeSelfDependency, fmt.Sprintf("tool %q depends on itself", tool)).
			WithDetail("tool", tool)
	}
	if !d.tools[dependency] {
		return core.ErrInvalidDependency(tool, dependency)
	}

	for _, dep := range d.edges[tool] {
		if dep == dependency {
			return nil
		}
	}

	d.edges[tool] = append(d.edges[tool], dependency)
	d.reverse[dependency] = append(d.reverse[dependency], tool)
	return nil
}

// Build validates the DAG and groups its tools into execution batches.
// No plan is returned when the graph has a cycle.
func (d *DAGBuilder) Build() (*core.ExecutionPlan, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	batches, ok := d.calculateLevels()
	if !ok {
		return nil, core.ErrCyclicDependency(d.findCycle())
	}

	return &core.ExecutionPlan{
		Batches:      batches,
		Dependencies: copyAdjacency(d.edges),
		Dependents:   copyAdjacency(d.reverse),
	}, nil
}

// calculateLevels peels zero in-degree tools off the graph level by level
// (Kahn's algorithm). A tool's level is the length of its longest dependency
// chain. Declaration order is preserved inside a level. ok is false when a
// step finds no ready tool while some remain.
func (d *DAGBuilder) calculateLevels() ([][]string, bool) {
	if len(d.order) == 0 {
		return [][]string{}, true
	}

	inDegree := make(map[string]int, len(d.order))
	for _, name := range d.order {
		inDegree[name] = len(d.edges[name])
	}

	levels := make([][]string, 0)
	assigned := 0
	done := make(map[string]bool, len(d.order))

	for assigned < len(d.order) {
		level := make([]string, 0)
		for _, name := range d.order {
			if !done[name] && inDegree[name] == 0 {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			return nil, false
		}

		for _, name := range level {
			done[name] = true
			assigned++
			for _, dependent := range d.reverse[name] {
				inDegree[dependent]--
			}
		}
		levels = append(levels, level)
	}
	return levels, true
}

// findCycle returns one dependency cycle using three-color DFS, with the
// first tool repeated at the end: a -> b -> a means a depends on b and b
// depends on a.
func (d *DAGBuilder) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(d.order))
	stack := make([]string, 0)
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = grey
		stack = append(stack, name)

		for _, dep := range d.edges[name] {
			switch color[dep] {
			case grey:
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if dfs(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range d.order {
		if color[name] == white && dfs(name) {
			return cycle
		}
	}
	return nil
}

// GetDependencies returns a tool's direct dependencies.
func (d *DAGBuilder) GetDependencies(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.edges[name]...)
}

// GetDependents returns the tools that depend directly on name.
func (d *DAGBuilder) GetDependents(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.reverse[name]...)
}

// ToolCount returns the number of tools in the DAG.
func (d *DAGBuilder) ToolCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

func copyAdjacency(m map[string][]string) map[string][]string {
	result := make(map[string][]string, len(m))
	for k, v := range m {
		result[k] = append([]string{}, v...)
	}
	return result
}

// Plan validates a workflow's dependency relation and returns its execution
// batches. It fails with INVALID_DEPENDENCY for a dangling dependency and
// CYCLIC_DEPENDENCY for a cycle, and never returns a partial plan.
func Plan(ws *core.WorkflowSpec) (*core.ExecutionPlan, error) {
	if ws == nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "workflow is nil")
	}

	b := NewDAGBuilder()
	for _, t := range ws.Tools {
		if err := b.AddTool(t.Name); err != nil {
			return nil, err
		}
	}
	for _, t := range ws.Tools {
		for _, dep := range t.DependsOn {
			if err := b.AddDependency(t.Name, dep); err != nil {
				return nil, err
			}
		}
	}
	return b.Build()
}

// Transitive returns every tool that depends on name directly or
// transitively.
func Transitive(plan *core.ExecutionPlan, name string) []string {
	if plan == nil {
		return nil
	}
	return plan.Downstream(name)
}
