package workflow

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// OptimizerConfig configures the iterative quality optimizer.
type OptimizerConfig struct {
	Enabled              bool
	MaxIterations        int
	ConvergenceThreshold float64
	MinImprovement       float64
	ConfidenceThreshold  float64
	MinOutputLength      int
}

// DefaultOptimizerConfig returns default configuration.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Enabled:              true,
		MaxIterations:        3,
		ConvergenceThreshold: 0.85,
		MinImprovement:       0.05,
		ConfidenceThreshold:  0.6,
		MinOutputLength:      20,
	}
}

// OptimizationResult is the outcome of one optimizer run over a record.
type OptimizationResult struct {
	Record         map[string]any
	Iterations     []core.IterationRecord
	Converged      bool
	InitialQuality float64
	FinalQuality   float64
}

// Optimizer refines tool inputs before invocation and decides whether an
// output deserves a corrective pass. Every transformation is pure and
// deterministic: the same record always yields the same result.
type Optimizer struct {
	config OptimizerConfig
}

// NewOptimizer creates a new optimizer.
func NewOptimizer(config OptimizerConfig) *Optimizer {
	if config.MaxIterations < 0 {
		config.MaxIterations = 0
	}
	return &Optimizer{config: config}
}

// Enabled reports whether the optimizer applies to tool.
func (o *Optimizer) Enabled(tool core.ToolSpec) bool {
	return o != nil && o.config.Enabled && tool.WantsOptimization()
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() OptimizerConfig {
	return o.config
}

// OptimizeInput refines input until its quality converges, stops improving
// or MaxIterations rounds ran. An input already at the convergence
// threshold comes back unchanged with zero rounds.
func (o *Optimizer) OptimizeInput(tool core.ToolSpec, input, options map[string]any) OptimizationResult {
	current := cloneRecord(input)
	quality := InputQuality(current, options)
	result := OptimizationResult{
		Record:         current,
		InitialQuality: quality,
		FinalQuality:   quality,
	}
	if quality >= o.config.ConvergenceThreshold {
		result.Converged = true
		return result
	}

	for round := 0; round < o.config.MaxIterations; round++ {
		strategy, candidate := o.refine(tool, current, quality)
		if strategy == core.StrategyNone {
			break
		}
		next := InputQuality(candidate, options)
		rec := core.IterationRecord{
			Round:         round,
			InputQuality:  quality,
			OutputQuality: next,
			Strategy:      strategy,
		}
		if next-quality < o.config.MinImprovement {
			result.Iterations = append(result.Iterations, rec)
			break
		}

		current, quality = candidate, next
		rec.Kept = true
		rec.Converged = quality >= o.config.ConvergenceThreshold
		result.Iterations = append(result.Iterations, rec)
		if rec.Converged {
			result.Converged = true
			break
		}
	}

	result.Record = current
	result.FinalQuality = quality
	return result
}

// IterateOnResult builds the input of a corrective pass: the original input
// with the previous output and the detected problems attached, refined by
// OptimizeInput.
func (o *Optimizer) IterateOnResult(tool core.ToolSpec, input, output map[string]any) OptimizationResult {
	next := cloneRecord(input)
	next[keyPreviousOutput] = cloneRecord(output)
	reasons := o.Diagnose(output)
	feedback := make([]any, len(reasons))
	for i, r := range reasons {
		feedback[i] = r
	}
	next[keyFeedback] = feedback

	if key := promptKey(next); len(reasons) > 0 {
		text, _ := next[key].(string)
		next[key] = appendSentence(text, "Address these problems in the previous answer: "+strings.Join(reasons, "; "))
	}
	return o.OptimizeInput(tool, next, tool.Options)
}

// StrategyFor returns the strategy preferred for a quality band.
func StrategyFor(quality float64) core.Strategy {
	switch {
	case quality < 0.3:
		return core.StrategyContextExpansion
	case quality < 0.5:
		return core.StrategyClarityEnhancement
	case quality < 0.7:
		return core.StrategySpecificityIncrease
	case quality < 0.85:
		return core.StrategyConstraintRefinement
	default:
		return core.StrategyExampleGeneration
	}
}

// refine applies the band's strategy to a clone of record, falling back
// along the fixed strategy order when it cannot change anything.
func (o *Optimizer) refine(tool core.ToolSpec, record map[string]any, quality float64) (core.Strategy, map[string]any) {
	order := []core.Strategy{StrategyFor(quality)}
	for _, s := range core.Strategies() {
		if s != order[0] {
			order = append(order, s)
		}
	}
	for _, s := range order {
		candidate := cloneRecord(record)
		if applyStrategy(s, tool, candidate) {
			return s, candidate
		}
	}
	return core.StrategyNone, record
}

// applyStrategy mutates rec in place and reports whether it changed.
func applyStrategy(s core.Strategy, tool core.ToolSpec, rec map[string]any) bool {
	switch s {
	case core.StrategyContextExpansion:
		return expandContext(tool, rec)
	case core.StrategyClarityEnhancement:
		return enhanceClarity(rec)
	case core.StrategySpecificityIncrease:
		return increaseSpecificity(rec)
	case core.StrategyConstraintRefinement:
		return refineConstraints(rec)
	case core.StrategyExampleGeneration:
		return generateExample(rec)
	}
	return false
}

func expandContext(tool core.ToolSpec, rec map[string]any) bool {
	key := promptKey(rec)
	text, _ := rec[key].(string)
	changed := false

	if strings.TrimSpace(text) == "" {
		var base string
		if d, ok := rec["description"].(string); ok && strings.TrimSpace(d) != "" {
			base = d
		} else if wf, ok := rec["workflow"].(string); ok && wf != "" {
			base = fmt.Sprintf("Run the %s step of the %s workflow", tool.Name, wf)
		} else {
			base = fmt.Sprintf("Run the %s step", tool.Name)
		}
		text = appendSentence("", base)
		changed = true
	}

	if _, ok := rec["context"]; !ok {
		var lines []string
		if d, ok := rec["description"].(string); ok && strings.TrimSpace(d) != "" && !strings.Contains(text, d) {
			lines = append(lines, strings.TrimSpace(d))
		}
		if insights := textOf(rec[core.KeyInsights]); insights != "" {
			lines = append(lines, insights)
		}
		if len(lines) > 0 {
			rec["context"] = strings.Join(lines, "\n")
			text = appendSentence(text, "Use the provided context")
			changed = true
		}
	}

	if changed {
		rec[key] = text
	}
	return changed
}

func enhanceClarity(rec map[string]any) bool {
	key := promptKey(rec)
	text, _ := rec[key].(string)
	if strings.TrimSpace(text) == "" {
		return false
	}

	r := strings.NewReplacer("; ", ". ", ", and ", ". ", ", but ", ". ")
	var sentences []string
	for _, s := range splitSentences(r.Replace(text)) {
		var kept []string
		for _, w := range strings.Fields(s) {
			if !vagueTerms[normalizeWord(w)] {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			sentences = append(sentences, capitalize(strings.Join(kept, " "))+".")
		}
	}
	clarified := strings.Join(sentences, " ")
	if clarified == "" || clarified == strings.TrimSpace(text) {
		return false
	}
	rec[key] = clarified
	return true
}

const specificityMarker = "Be specific:"

func increaseSpecificity(rec map[string]any) bool {
	key := promptKey(rec)
	text, _ := rec[key].(string)
	if strings.TrimSpace(text) == "" || strings.Contains(text, specificityMarker) {
		return false
	}
	line := specificityMarker + " the answer must name concrete items, figures and sources"
	if deps, ok := rec["dependencies"].(map[string]any); ok && len(deps) > 0 {
		names := sortedKeys(deps)
		line += ". Ground it in the results of " + strings.Join(names, ", ")
	}
	rec[key] = appendSentence(text, line)
	return true
}

const constraintsMarker = "Constraints:"

func refineConstraints(rec map[string]any) bool {
	key := promptKey(rec)
	text, _ := rec[key].(string)
	if strings.TrimSpace(text) == "" || strings.Contains(text, constraintsMarker) || nonEmpty(rec[keyConstraints]) {
		return false
	}
	rec[key] = appendSentence(text, constraintsMarker+" respond only with the requested fields. Do not add unrelated commentary")
	return true
}

const exampleMarker = "For example,"

func generateExample(rec map[string]any) bool {
	key := promptKey(rec)
	text, _ := rec[key].(string)
	if strings.TrimSpace(text) == "" || strings.Contains(text, exampleMarker) || nonEmpty(rec[keyExamples]) {
		return false
	}
	rec[key] = appendSentence(text, exampleMarker+" list each finding with the evidence that supports it")
	return true
}

// appendSentence joins text and sentence, terminating both with a period.
func appendSentence(text, sentence string) string {
	text = strings.TrimSpace(text)
	sentence = strings.TrimSpace(sentence)
	if !strings.HasSuffix(sentence, ".") {
		sentence += "."
	}
	if text == "" {
		return sentence
	}
	if last := text[len(text)-1]; last != '.' && last != '!' && last != '?' {
		text += "."
	}
	return text + " " + sentence
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// cloneRecord copies a record deeply enough that transformations never
// touch the original maps or lists.
func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneRecord(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
