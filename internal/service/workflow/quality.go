package workflow

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Rubric weights. They sum to 1.
const (
	weightCompleteness = 0.4
	weightClarity      = 0.3
	weightConstraints  = 0.15
	weightExamples     = 0.15
)

// Keys read from tool inputs by the rubric.
const (
	keyPrompt         = "prompt"
	keyProblem        = "problem"
	keyConstraints    = "constraints"
	keyExamples       = "examples"
	keyRequiredFields = "required_fields"
	keyPreviousOutput = "previous_output"
	keyFeedback       = "feedback"
)

// idealSentenceWords is the longest average sentence that still scores full
// clarity.
const idealSentenceWords = 20

// garbageThreshold is the analysis size from which structure is required.
const garbageThreshold = 1024

var vagueTerms = map[string]bool{
	"some": true, "something": true, "stuff": true, "thing": true, "things": true,
	"etc": true, "various": true, "maybe": true, "somehow": true, "whatever": true,
	"probably": true, "basically": true, "several": true, "perhaps": true,
}

var constraintMarkers = []string{
	"must", "should", "only", "at most", "at least", "do not", "don't",
	"never", "limit", "within", "format",
}

var exampleMarkers = []string{"example", "examples", "e.g", "for instance", "such as"}

// QualityScore is the rubric broken down by dimension, each in [0,1].
type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Constraints  float64 `json:"constraints"`
	Examples     float64 `json:"examples"`
}

// Total returns the weighted score clamped to [0,1].
func (q QualityScore) Total() float64 {
	total := q.Completeness*weightCompleteness +
		q.Clarity*weightClarity +
		q.Constraints*weightConstraints +
		q.Examples*weightExamples
	return math.Round(clamp01(total)*1e4) / 1e4
}

// AssessInput scores an input record. options may override the required
// fields with "required_fields".
func AssessInput(input, options map[string]any) QualityScore {
	text := promptText(input)
	return QualityScore{
		Completeness: completeness(input, requiredFields(options)),
		Clarity:      clarity(text),
		Constraints:  constraintScore(input, text),
		Examples:     exampleScore(input, text),
	}
}

// InputQuality returns the total rubric score of an input record.
func InputQuality(input, options map[string]any) float64 {
	return AssessInput(input, options).Total()
}

func completeness(input map[string]any, required []string) float64 {
	if len(required) == 0 {
		if nonEmpty(input[keyProblem]) || nonEmpty(input[keyPrompt]) {
			return 1
		}
		return 0
	}
	present := 0
	for _, f := range required {
		if nonEmpty(input[f]) {
			present++
		}
	}
	return float64(present) / float64(len(required))
}

func clarity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	avg := float64(len(words)) / float64(len(sentences))
	lengthScore := 1.0
	if avg > idealSentenceWords {
		lengthScore = clamp01(1 - (avg-idealSentenceWords)/30)
	}
	if len(words) < 5 {
		lengthScore *= float64(len(words)) / 5
	}

	vague := 0
	for _, w := range words {
		if vagueTerms[normalizeWord(w)] {
			vague++
		}
	}
	vagueScore := clamp01(1 - float64(vague)/float64(len(words))*10)

	return (lengthScore + vagueScore) / 2
}

func constraintScore(input map[string]any, text string) float64 {
	if nonEmpty(input[keyConstraints]) {
		return 1
	}
	switch n := countMarkers(text, constraintMarkers); {
	case n >= 2:
		return 1
	case n == 1:
		return 0.5
	default:
		return 0
	}
}

func exampleScore(input map[string]any, text string) float64 {
	if nonEmpty(input[keyExamples]) {
		return 1
	}
	if countMarkers(text, exampleMarkers) > 0 {
		return 1
	}
	return 0
}

// Diagnose lists the problems that make an output worth a corrective pass.
// An empty list means the output is acceptable.
func (o *Optimizer) Diagnose(output map[string]any) []string {
	if len(output) == 0 {
		return []string{"output is empty"}
	}

	var reasons []string
	switch e := output[core.KeyError].(type) {
	case nil:
	case bool:
		if e {
			reasons = append(reasons, "tool reported an error")
		}
	default:
		if msg := strings.TrimSpace(textOf(e)); msg != "" {
			reasons = append(reasons, "tool reported an error: "+msg)
		}
	}
	if incomplete, ok := output[core.KeyIncomplete].(bool); ok && incomplete {
		reasons = append(reasons, "output marked incomplete")
	}
	if c, ok := toFloat(output[core.KeyConfidence]); ok && c < o.config.ConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below %.2f", c, o.config.ConfidenceThreshold))
	}

	combined := 0
	for _, k := range core.SemanticKeys {
		combined += len(strings.TrimSpace(textOf(output[k])))
	}
	if combined < o.config.MinOutputLength {
		reasons = append(reasons, fmt.Sprintf("analysis text too short (%d < %d chars)", combined, o.config.MinOutputLength))
	}

	if analysis, ok := output[core.KeyAnalysis].(string); ok && !isStructuredAnalysis(analysis) {
		reasons = append(reasons, "analysis is an unstructured blob")
	}
	return reasons
}

// ShouldIterate reports whether an output warrants one corrective pass.
func (o *Optimizer) ShouldIterate(output map[string]any) bool {
	return len(o.Diagnose(output)) > 0
}

// isStructuredAnalysis rejects long single-line or header-less text, the
// usual shape of concatenated narration rather than a real analysis. Short
// text is accepted as-is; empty text is handled by the length check.
func isStructuredAnalysis(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < garbageThreshold {
		return true
	}
	if !strings.Contains(trimmed, "\n") {
		return false
	}
	return strings.HasPrefix(trimmed, "#") || strings.Contains(trimmed, "\n#")
}

func requiredFields(options map[string]any) []string {
	switch v := options[keyRequiredFields].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// promptKey names the field holding the free-form text of an input.
func promptKey(input map[string]any) string {
	if s, ok := input[keyPrompt].(string); ok && strings.TrimSpace(s) != "" {
		return keyPrompt
	}
	return keyProblem
}

func promptText(input map[string]any) string {
	s, _ := input[promptKey(input)].(string)
	return s
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}))
}

// countMarkers counts distinct markers present as whole words or phrases.
func countMarkers(text string, markers []string) int {
	words := strings.Fields(text)
	norm := make([]string, 0, len(words))
	for _, w := range words {
		if n := normalizeWord(w); n != "" {
			norm = append(norm, n)
		}
	}
	padded := " " + strings.Join(norm, " ") + " "

	n := 0
	for _, m := range markers {
		if strings.Contains(padded, " "+m+" ") {
			n++
		}
	}
	return n
}

func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// textOf flattens a string or a list of strings.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, "\n")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := textOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
