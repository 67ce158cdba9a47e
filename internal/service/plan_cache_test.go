package service

import (
	"errors"
	"testing"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

func TestPlanCache_HitAndMiss(t *testing.T) {
	cache := NewPlanCache()
	ws := workflow(tool("fetch"), tool("summarize", "fetch"))

	first, err := cache.Plan(ws)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	second, err := cache.Plan(workflow(tool("fetch"), tool("summarize", "fetch")))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if first != second {
		t.Errorf("equal workflows should share one cached plan")
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 1", hits, misses)
	}
}

func TestPlanCache_DifferentSpecs(t *testing.T) {
	cache := NewPlanCache()
	_, _ = cache.Plan(workflow(tool("a")))
	_, _ = cache.Plan(workflow(tool("b")))
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}

func TestPlanCache_ErrorsNotCached(t *testing.T) {
	cache := NewPlanCache()
	ws := workflow(tool("a", "b"), tool("b", "a"))

	for i := 0; i < 2; i++ {
		if _, err := cache.Plan(ws); !errors.Is(err, core.ErrPlanning(core.CodeCyclicDependency, "")) {
			t.Fatalf("Plan() error = %v", err)
		}
	}
	if cache.Len() != 0 {
		t.Errorf("failed plans must not be cached")
	}
}

func TestPlanCache_InvalidateByPath(t *testing.T) {
	cache := NewPlanCache()
	ws := workflow(tool("fetch"))

	if _, err := cache.PlanFor("/specs/review.yaml", ws); err != nil {
		t.Fatalf("PlanFor() error = %v", err)
	}
	if !cache.Invalidate("/specs/review.yaml") {
		t.Errorf("Invalidate() should report a removed entry")
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d after invalidation", cache.Len())
	}
	if cache.Invalidate("/specs/review.yaml") {
		t.Errorf("second Invalidate() should be a no-op")
	}
}

func TestPlanCache_ReloadReplacesPathEntry(t *testing.T) {
	cache := NewPlanCache()
	_, _ = cache.PlanFor("/specs/review.yaml", workflow(tool("fetch")))
	_, _ = cache.PlanFor("/specs/review.yaml", workflow(tool("fetch"), tool("report", "fetch")))

	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want the stale plan dropped", cache.Len())
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a, err := Fingerprint(&core.WorkflowSpec{Name: "wf", Tools: []core.ToolSpec{{Name: "x", Options: map[string]any{"b": 1, "a": 2}}}})
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	b, _ := Fingerprint(&core.WorkflowSpec{Name: "wf", Tools: []core.ToolSpec{{Name: "x", Options: map[string]any{"a": 2, "b": 1}}}})
	if a != b || len(a) != 64 {
		t.Errorf("Fingerprint() not stable: %s vs %s", a, b)
	}
}

func TestPlanCache_LookupReportsHit(t *testing.T) {
	cache := NewPlanCache()
	ws := workflow(tool("fetch"))

	if _, hit, err := cache.Lookup("", ws); err != nil || hit {
		t.Fatalf("first Lookup() hit=%v err=%v, want miss", hit, err)
	}
	if _, hit, err := cache.Lookup("", ws); err != nil || !hit {
		t.Fatalf("second Lookup() hit=%v err=%v, want hit", hit, err)
	}
}
