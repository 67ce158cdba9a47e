package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/logging"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

var specExtensions = []string{".yaml", ".yml", ".json"}

// SpecWatcher serves workflow documents from a directory by name and keeps
// parsed specs and cached plans fresh as files change on disk.
type SpecWatcher struct {
	dir    string
	loader *spec.Loader
	cache  *PlanCache
	logger *logging.Logger

	mu    sync.RWMutex
	specs map[string]*core.WorkflowSpec // absolute path -> parsed spec
}

// NewSpecWatcher creates a watcher over dir. Call Run to start watching;
// Load works without it but never sees changes.
func NewSpecWatcher(dir string, loader *spec.Loader, cache *PlanCache, logger *logging.Logger) (*SpecWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workflow dir: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SpecWatcher{
		dir:    abs,
		loader: loader,
		cache:  cache,
		logger: logger,
		specs:  make(map[string]*core.WorkflowSpec),
	}, nil
}

// Dir returns the watched directory.
func (w *SpecWatcher) Dir() string {
	return w.dir
}

// Resolve maps a workflow name to its document path.
func (w *SpecWatcher) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", core.ErrPlanning(core.CodeInvalidSpec, fmt.Sprintf("invalid workflow name %q", name))
	}
	for _, ext := range specExtensions {
		path := filepath.Join(w.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", core.ErrNotFound("workflow", name)
}

// Load returns the parsed workflow called name, reading it from disk on
// first use or after it changed.
func (w *SpecWatcher) Load(name string) (*core.WorkflowSpec, string, error) {
	path, err := w.Resolve(name)
	if err != nil {
		return nil, "", err
	}

	w.mu.RLock()
	ws, ok := w.specs[path]
	w.mu.RUnlock()
	if ok {
		return ws, path, nil
	}

	ws, err = w.loader.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	w.mu.Lock()
	w.specs[path] = ws
	w.mu.Unlock()
	return ws, path, nil
}

// List returns the workflow names available in the directory.
func (w *SpecWatcher) List() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isSpecFile(e.Name()) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return names, nil
}

// Invalidate forgets the parsed spec and cached plan for path.
func (w *SpecWatcher) Invalidate(path string) {
	w.mu.Lock()
	delete(w.specs, path)
	w.mu.Unlock()
	if w.cache != nil {
		w.cache.Invalidate(path)
	}
}

// Run watches the directory until ctx is done.
func (w *SpecWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching workflow directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.resetAll()
			}
			w.logger.Warn("workflow watcher error", "error", err)
		}
	}
}

func (w *SpecWatcher) handle(event fsnotify.Event) {
	if !isSpecFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil {
		path = event.Name
	}
	w.Invalidate(path)
	w.logger.Debug("workflow changed", "path", path, "op", event.Op.String())
}

// resetAll drops every parsed spec after missed events.
func (w *SpecWatcher) resetAll() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.specs))
	for p := range w.specs {
		paths = append(paths, p)
	}
	w.specs = make(map[string]*core.WorkflowSpec)
	w.mu.Unlock()

	if w.cache != nil {
		for _, p := range paths {
			w.cache.Invalidate(p)
		}
	}
}

func isSpecFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range specExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
