package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// PlanCache memoizes execution plans by workflow fingerprint. Plans are
// read-only, so a cached plan is shared by every run of the same workflow.
type PlanCache struct {
	mu     sync.RWMutex
	plans  map[string]*core.ExecutionPlan
	paths  map[string]string // source path -> fingerprint
	hits   int64
	misses int64
}

// NewPlanCache creates an empty plan cache.
func NewPlanCache() *PlanCache {
	return &PlanCache{
		plans: make(map[string]*core.ExecutionPlan),
		paths: make(map[string]string),
	}
}

// Fingerprint returns the sha256 of the workflow's canonical JSON encoding.
func Fingerprint(ws *core.WorkflowSpec) (string, error) {
	data, err := json.Marshal(ws)
	if err != nil {
		return "", fmt.Errorf("fingerprinting workflow %q: %w", ws.Name, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Plan returns the cached plan for ws, planning and storing it on a miss.
// Planning errors are not cached.
func (c *PlanCache) Plan(ws *core.WorkflowSpec) (*core.ExecutionPlan, error) {
	return c.PlanFor("", ws)
}

// PlanFor is Plan for a workflow loaded from path; the entry is dropped by
// Invalidate(path).
func (c *PlanCache) PlanFor(path string, ws *core.WorkflowSpec) (*core.ExecutionPlan, error) {
	plan, _, err := c.Lookup(path, ws)
	return plan, err
}

// Lookup is PlanFor that also reports whether the plan came from the cache.
func (c *PlanCache) Lookup(path string, ws *core.WorkflowSpec) (*core.ExecutionPlan, bool, error) {
	if ws == nil {
		return nil, false, core.ErrPlanning(core.CodeInvalidSpec, "workflow is nil")
	}
	key, err := Fingerprint(ws)
	if err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	plan, ok := c.plans[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return plan, true, nil
	}

	plan, err = Plan(ws)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	c.plans[key] = plan
	if path != "" {
		if old, ok := c.paths[path]; ok && old != key {
			delete(c.plans, old)
		}
		c.paths[path] = key
	}
	return plan, false, nil
}

// Invalidate drops the plan associated with a source path.
func (c *PlanCache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.paths[path]
	if !ok {
		return false
	}
	delete(c.paths, path)
	delete(c.plans, key)
	return true
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// Stats returns cache hits and misses.
func (c *PlanCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
