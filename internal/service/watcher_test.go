package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

const reviewDoc = `name: review
tools:
  - name: fetch
    type: analysis
  - name: report
    type: analysis
    depends_on: [fetch]
`

func newTestWatcher(t *testing.T) (*SpecWatcher, *PlanCache, string) {
	t.Helper()
	dir := t.TempDir()
	cache := NewPlanCache()
	w, err := NewSpecWatcher(dir, spec.NewLoader(spec.DefaultDefaults()), cache, logging.NewNop())
	require.NoError(t, err)
	return w, cache, w.Dir()
}

func TestSpecWatcher_LoadAndList(t *testing.T) {
	w, _, dir := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.yaml"), []byte(reviewDoc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	ws, path, err := w.Load("review")
	require.NoError(t, err)
	assert.Equal(t, "review", ws.Name)
	assert.Equal(t, filepath.Join(dir, "review.yaml"), path)

	again, _, err := w.Load("review")
	require.NoError(t, err)
	assert.Same(t, ws, again, "second load should come from memory")

	names, err := w.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"review"}, names)
}

func TestSpecWatcher_ResolveErrors(t *testing.T) {
	w, _, _ := newTestWatcher(t)

	_, _, err := w.Load("missing")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound), "got %v", err)

	for _, name := range []string{"", "../etc/passwd", ".hidden", `a\b`} {
		_, err := w.Resolve(name)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation), "name %q: got %v", name, err)
	}
}

func TestSpecWatcher_HandleInvalidates(t *testing.T) {
	w, cache, dir := newTestWatcher(t)
	path := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reviewDoc), 0o600))

	ws, p, err := w.Load("review")
	require.NoError(t, err)
	_, err = cache.PlanFor(p, ws)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	w.handle(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write})
	assert.Equal(t, 1, cache.Len(), "non-spec files are ignored")

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	assert.Equal(t, 1, cache.Len(), "chmod does not change content")

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	assert.Equal(t, 0, cache.Len())

	reloaded, _, err := w.Load("review")
	require.NoError(t, err)
	assert.NotSame(t, ws, reloaded)
}

func TestSpecWatcher_RunPicksUpChanges(t *testing.T) {
	w, _, dir := newTestWatcher(t)
	path := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reviewDoc), 0o600))

	ws, _, err := w.Load("review")
	require.NoError(t, err)
	require.Len(t, ws.Tools, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	updated := reviewDoc + "  - name: publish\n    type: analysis\n    depends_on: [report]\n"
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		latest, _, err := w.Load("review")
		return err == nil && len(latest.Tools) == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
