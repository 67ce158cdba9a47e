package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/spec"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan <workflow-file>",
	Short: "Show the execution batches of a workflow",
	Long: `Plan validates a workflow and prints the batches it would run in, without
invoking any tool. Tools in the same batch run concurrently when the
workflow allows parallelism.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

// planOutput is the JSON form of a plan.
type planOutput struct {
	Workflow     string              `json:"workflow"`
	Batches      [][]string          `json:"batches"`
	Order        []string            `json:"order"`
	Dependencies map[string][]string `json:"dependencies"`
	Unbound      []string            `json:"unbound,omitempty"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	ws, err := app.LoadSpec(args[0])
	if err != nil {
		return err
	}
	if err := spec.Validate(ws); err != nil {
		printProblems(cmd.ErrOrStderr(), err)
		return fmt.Errorf("workflow %q is invalid", ws.Name)
	}
	plan, err := app.Plans.Plan(ws)
	if err != nil {
		return err
	}

	// Planning does not need invokers; report the gaps instead of failing.
	var unbound []string
	if _, err := app.Registry.Bind(ws); err != nil {
		unbound = unboundTools(ws, app.Registry.Has)
	}

	out := cmd.OutOrStdout()
	if planJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{
			Workflow:     ws.Name,
			Batches:      plan.Batches,
			Order:        plan.Order(),
			Dependencies: plan.Dependencies,
			Unbound:      unbound,
		})
	}

	printPlan(out, ws, plan)
	if len(unbound) > 0 {
		fmt.Fprintf(out, "\nNo invoker configured for: %s\n", strings.Join(unbound, ", "))
	}
	return nil
}

func printPlan(w io.Writer, ws *core.WorkflowSpec, plan *core.ExecutionPlan) {
	mode := "sequential"
	if ws.AllowParallel {
		mode = fmt.Sprintf("parallel, max %d", ws.MaxParallelism)
	}
	fmt.Fprintf(w, "Workflow %s: %d tools in %d batches (%s)\n", ws.Name, len(ws.Tools), len(plan.Batches), mode)
	for i, batch := range plan.Batches {
		fmt.Fprintf(w, "  %d. %s\n", i+1, strings.Join(batch, ", "))
	}
}

func unboundTools(ws *core.WorkflowSpec, has func(string) bool) []string {
	var missing []string
	for _, t := range ws.Tools {
		if !has(t.Name) {
			missing = append(missing, t.Name)
		}
	}
	return missing
}

// printProblems lists every validation problem, one per line.
func printProblems(w io.Writer, err error) {
	var problems spec.Problems
	if errors.As(err, &problems) {
		for _, p := range problems {
			fmt.Fprintf(w, "  - [%s] %s\n", p.Code, p.Message)
		}
		return
	}
	var domainErr *core.DomainError
	if errors.As(err, &domainErr) {
		fmt.Fprintf(w, "  - [%s] %s\n", domainErr.Code, domainErr.Message)
		return
	}
	fmt.Fprintf(w, "  - %v\n", err)
}
