package core

import "sort"

// ExecutionPlan is the read-only batching of a workflow's tools. Every
// dependency of a tool in batch i appears in a batch before i. A plan
// carries no run state and may be shared across runs of the same spec.
type ExecutionPlan struct {
	Batches      [][]string          `json:"batches"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	Dependents   map[string][]string `json:"-"`
}

// Order returns the tools in batch order; this is a valid topological order.
func (p *ExecutionPlan) Order() []string {
	order := make([]string, 0, p.Size())
	for _, batch := range p.Batches {
		order = append(order, batch...)
	}
	return order
}

// Size returns the number of tools in the plan.
func (p *ExecutionPlan) Size() int {
	n := 0
	for _, batch := range p.Batches {
		n += len(batch)
	}
	return n
}

// BatchOf returns the index of the batch holding a tool, or -1.
func (p *ExecutionPlan) BatchOf(name string) int {
	for i, batch := range p.Batches {
		for _, n := range batch {
			if n == name {
				return i
			}
		}
	}
	return -1
}

// Downstream returns every tool that depends on name directly or
// transitively, sorted by name.
func (p *ExecutionPlan) Downstream(name string) []string {
	seen := make(map[string]bool)
	queue := append([]string(nil), p.Dependents[name]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if seen[current] {
			continue
		}
		seen[current] = true
		queue = append(queue, p.Dependents[current]...)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
