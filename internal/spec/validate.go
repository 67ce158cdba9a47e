package spec

import (
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Problems collects every semantic problem found in one workflow. Each entry
// is a validation DomainError, so errors.Is matches any of their codes.
type Problems []*core.DomainError

func (p Problems) Error() string {
	msgs := make([]string, len(p))
	for i, e := range p {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (p Problems) Unwrap() []error {
	errs := make([]error, len(p))
	for i, e := range p {
		errs[i] = e
	}
	return errs
}

// Codes returns the problem codes in detection order.
func (p Problems) Codes() []string {
	codes := make([]string, len(p))
	for i, e := range p {
		codes[i] = e.Code
	}
	return codes
}

// Validate checks a workflow for duplicate names, unknown tool types, self
// dependencies, dangling dependencies, malformed input expressions and
// negative limits. It reports all
// problems at once. Cycles are detected by the planner.
func Validate(ws *core.WorkflowSpec) error {
	if ws == nil {
		return core.ErrPlanning(core.CodeInvalidSpec, "workflow is nil")
	}

	var problems Problems
	names := make(map[string]bool, len(ws.Tools))
	all := ws.ToolNames()

	if strings.TrimSpace(ws.Name) == "" {
		problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec, "workflow name is required"))
	}
	if ws.Timeout < 0 {
		problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec, "workflow timeout must not be negative"))
	}
	if ws.MaxParallelism < 0 {
		problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec, "max_parallelism must not be negative"))
	}

	for i, t := range ws.Tools {
		if t.Name == "" {
			problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec, fmt.Sprintf("tools[%d]: name is required", i)))
			continue
		}
		if names[t.Name] {
			problems = append(problems, core.ErrPlanning(core.CodeDuplicateTool,
				fmt.Sprintf("tool %q is declared more than once", t.Name)).WithDetail("tool", t.Name))
		}
		names[t.Name] = true

		if !t.Type.Valid() {
			msg := fmt.Sprintf("tool %q has unknown type %q", t.Name, t.Type)
			if hint := Suggest(string(t.Type), core.ValidToolTypes()); hint != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", hint)
			}
			problems = append(problems, core.ErrPlanning(core.CodeUnknownToolType, msg).WithDetail("tool", t.Name))
		}
		if t.Timeout < 0 {
			problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec,
				fmt.Sprintf("tool %q: timeout must not be negative", t.Name)).WithDetail("tool", t.Name))
		}
		if t.MaxRetries < 0 {
			problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec,
				fmt.Sprintf("tool %q: retry count must not be negative", t.Name)).WithDetail("tool", t.Name))
		}
		for key, expr := range t.Inputs {
			if _, err := jmespath.Compile(expr); err != nil {
				problems = append(problems, core.ErrPlanning(core.CodeInvalidSpec,
					fmt.Sprintf("tool %q: input %q is not a valid JMESPath expression: %v", t.Name, key, err)).
					WithDetail("tool", t.Name))
			}
		}
	}

	for _, t := range ws.Tools {
		for _, dep := range t.DependsOn {
			if dep == t.Name {
				problems = append(problems, core.ErrPlanning(core.CodeSelfDependency,
					fmt.Sprintf("tool %q depends on itself", t.Name)).WithDetail("tool", t.Name))
				continue
			}
			if !names[dep] {
				err := core.ErrInvalidDependency(t.Name, dep)
				if hint := Suggest(dep, all); hint != "" {
					err.Message += fmt.Sprintf(" (did you mean %q?)", hint)
				}
				problems = append(problems, err)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

// Suggest returns the closest candidate for a misspelled name, or "" when
// nothing is close enough.
func Suggest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	matches := fuzzy.Find(strings.ToLower(name), lower(candidates))
	if len(matches) == 0 {
		return ""
	}
	return candidates[matches[0].Index]
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
