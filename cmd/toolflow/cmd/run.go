package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/report"
)

var (
	runOutput  string
	runFormat  string
	runTimeout time.Duration
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Run a workflow and print its report",
	Long: `Run executes the workflow declared in a YAML or JSON file. Tools run in
dependency order; progress is printed to stderr and the final report to
stdout. Use --output to also write the report to a file, its format inferred
from the extension.

The command exits non-zero unless every tool completed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"also write the report to this file (.txt, .json, .yaml)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text",
		"report format on stdout (text, json, yaml)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0,
		"override the workflow timeout")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false,
		"do not print progress")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(runFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	ws, err := app.LoadSpec(args[0])
	if err != nil {
		return err
	}
	if runTimeout > 0 {
		ws.Timeout = runTimeout
	}

	stopProgress := func() {}
	if !runQuiet {
		stopProgress = watchProgress(app.Bus, cmd.ErrOrStderr())
	}

	app.Logger.Info("running workflow", "workflow", ws.Name, "tools", len(ws.Tools), "file", args[0])
	result := app.Runner.RunSpec(ctx, ws)
	stopProgress()

	if err := report.Render(cmd.OutOrStdout(), result, format); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if runOutput != "" {
		if err := report.WriteFile(runOutput, result, ""); err != nil {
			return err
		}
		app.Logger.Info("report written", "path", runOutput)
	}

	if result.Status != core.WorkflowStatusCompleted {
		return fmt.Errorf("workflow %q finished with status %s", result.Workflow, result.Status)
	}
	return nil
}
