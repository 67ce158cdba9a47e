package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>...",
	Short: "Check workflow files without running them",
	Long: `Validate parses each workflow file, checks it against the workflow schema,
looks for duplicate tools, dangling or cyclic dependencies and malformed
input expressions, and verifies every tool has an invoker configured.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	out := cmd.OutOrStdout()
	invalid := 0
	for _, path := range args {
		ws, err := checkWorkflow(app, path)
		if err != nil {
			invalid++
			fmt.Fprintf(out, "%s: invalid\n", path)
			printProblems(out, err)
			continue
		}
		fmt.Fprintf(out, "%s: workflow %q is valid (%d tools)\n", path, ws.Name, len(ws.Tools))
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d workflow files are invalid", invalid, len(args))
	}
	return nil
}

// checkWorkflow runs every check a run performs before invoking a tool.
func checkWorkflow(app *App, path string) (*core.WorkflowSpec, error) {
	ws, err := app.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(ws); err != nil {
		return nil, err
	}
	if _, err := app.Plans.Plan(ws); err != nil {
		return nil, err
	}
	if _, err := app.Registry.Bind(ws); err != nil {
		return nil, err
	}
	return ws, nil
}
