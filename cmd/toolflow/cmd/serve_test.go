package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommand_StopsOnCancel(t *testing.T) {
	dir := isolate(t)
	watchDir := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(watchDir, 0o750))
	writeFile(t, watchDir, "pipeline.yaml", pipelineYAML)
	cfgPath := writeFile(t, dir, "toolflow.yaml", "server:\n  addr: 127.0.0.1:0\n  shutdown_timeout: 2s\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subcommands keep the context of their first execution.
	resetFlags(rootCmd)
	serveCmd.SetContext(ctx)
	rootCmd.SetArgs([]string{"--log-level=error", "--config", cfgPath, "serve", "--watch-dir", watchDir})
	t.Cleanup(func() {
		serveCmd.SetContext(context.Background())
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	done := make(chan error, 1)
	go func() { done <- rootCmd.Execute() }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestServeCommand_RejectsMissingWatchDir(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeFile(t, dir, "toolflow.yaml", "server:\n  watch_dir: "+filepath.Join(dir, "missing")+"\n")

	_, _, err := execute(t, "--config", cfgPath, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.watch_dir")
}
