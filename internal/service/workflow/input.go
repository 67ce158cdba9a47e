package workflow

import (
	"fmt"
	"sort"

	"github.com/jmespath/go-jmespath"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Keys written into every assembled input.
const (
	keyWorkflow     = "workflow"
	keyDescription  = "description"
	keyDependencies = "dependencies"
)

// BuildInput assembles the input record of tool. Later sources win:
//
//  1. workflow defaults: problem, description, workflow
//  2. the tool's options
//  3. per dependency d, in name order: d_output, d_insights,
//     d_recommendations and d_analysis, then the aggregated insights and
//     recommendations lists and the dependencies map
//  4. the tool's JMESPath inputs, evaluated over {"<dep>": output}
//
// outputs holds the outputs of completed tools; dependencies missing from
// it are ignored. The result shares no maps with outputs.
func BuildInput(ws *core.WorkflowSpec, tool core.ToolSpec, outputs map[string]map[string]any) (map[string]any, error) {
	input := map[string]any{
		keyWorkflow: ws.Name,
	}
	if ws.Problem != "" {
		input[keyProblem] = ws.Problem
	}
	if ws.Description != "" {
		input[keyDescription] = ws.Description
	}

	for k, v := range tool.Options {
		input[k] = cloneValue(v)
	}

	deps := append([]string(nil), tool.DependsOn...)
	sort.Strings(deps)

	scope := make(map[string]any, len(deps))
	var insights, recommendations []any
	for _, dep := range deps {
		out, ok := outputs[dep]
		if !ok {
			continue
		}
		out = cloneRecord(out)
		scope[dep] = out
		input[dep+"_output"] = out

		for _, key := range core.SemanticKeys {
			if v, ok := out[key]; ok && v != nil {
				input[dep+"_"+key] = v
			}
		}
		insights = appendItems(insights, out[core.KeyInsights])
		recommendations = appendItems(recommendations, out[core.KeyRecommendations])
	}
	if len(insights) > 0 {
		input[core.KeyInsights] = insights
	}
	if len(recommendations) > 0 {
		input[core.KeyRecommendations] = recommendations
	}
	if len(scope) > 0 {
		input[keyDependencies] = scope
	}

	for _, key := range sortedStringKeys(tool.Inputs) {
		expr := tool.Inputs[key]
		v, err := jmespath.Search(expr, scope)
		if err != nil {
			return nil, core.ErrToolFatal(tool.Name, fmt.Errorf("evaluating input %q (%s): %w", key, expr, err))
		}
		input[key] = v
	}
	return input, nil
}

// appendItems flattens a string or list value into items.
func appendItems(items []any, v any) []any {
	switch t := v.(type) {
	case nil:
		return items
	case []any:
		return append(items, t...)
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
		return items
	default:
		return append(items, t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
