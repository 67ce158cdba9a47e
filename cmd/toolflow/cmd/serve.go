package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/toolflow/internal/api"
	"github.com/hugo-lorenzo-mato/toolflow/internal/service"
)

var (
	serveAddr     string
	serveWatchDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve starts the HTTP API for starting, inspecting and cancelling
workflow runs. Runs continue in the background after the request that
started them returns; their events can be followed over server-sent events.

When a workflow directory is configured, workflows in it can be started by
name and their cached plans are dropped when the files change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from server.addr)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "",
		"directory of workflow files to serve by name")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	cfg := app.Config
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	watchDir := cfg.Server.WatchDir
	if serveWatchDir != "" {
		watchDir = serveWatchDir
	}

	opts := []api.ServerOption{
		api.WithLogger(app.Logger),
		api.WithEventBus(app.Bus),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	}
	if app.Metrics != nil {
		opts = append(opts, api.WithMetricsHandler(cfg.Metrics.Path, app.Metrics.Handler()))
	}

	g, gctx := errgroup.WithContext(ctx)
	if watchDir != "" {
		watcher, err := service.NewSpecWatcher(watchDir, app.Specs, app.Plans, app.Logger)
		if err != nil {
			return fmt.Errorf("creating workflow watcher: %w", err)
		}
		opts = append(opts, api.WithSpecWatcher(watcher))
		g.Go(func() error { return watcher.Run(gctx) })
	}

	server := api.NewServer(app.Runner, app.Specs, opts...)
	g.Go(func() error { return server.ListenAndServe(gctx, addr) })

	serveErr := g.Wait()

	app.Logger.Info("shutting down, cancelling active runs", "timeout", cfg.ShutdownTimeout())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := app.Runner.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("runs still active at shutdown", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("serving: %w", serveErr)
	}
	return nil
}
