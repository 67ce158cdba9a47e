// Package spec loads workflow documents from YAML or JSON into the core
// workflow model and validates them.
package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Format identifies the encoding of a workflow document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the document format from a file extension.
// Unknown extensions are treated as YAML, which is a superset of JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Defaults fills in values a document leaves out.
type Defaults struct {
	Timeout        time.Duration
	ToolTimeout    time.Duration
	MaxRetries     int
	AllowParallel  bool
	MaxParallelism int
}

// DefaultDefaults returns the built-in fallbacks used when no configuration
// is supplied.
func DefaultDefaults() Defaults {
	return Defaults{
		Timeout:        30 * time.Minute,
		ToolTimeout:    2 * time.Minute,
		MaxRetries:     2,
		AllowParallel:  true,
		MaxParallelism: 4,
	}
}

// Document is the on-disk shape of a workflow.
type Document struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	Problem        string         `json:"problem,omitempty" yaml:"problem,omitempty"`
	AllowParallel  *bool          `json:"allow_parallel,omitempty" yaml:"allow_parallel,omitempty"`
	MaxParallelism *int           `json:"max_parallelism,omitempty" yaml:"max_parallelism,omitempty"`
	Timeout        string         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Tools          []ToolDocument `json:"tools" yaml:"tools"`
}

// ToolDocument is the on-disk shape of one tool entry.
type ToolDocument struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	DependsOn  []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout    string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount *int              `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	Config     map[string]any    `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs     map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Optimize   *bool             `json:"optimize,omitempty" yaml:"optimize,omitempty"`
}

// Loader parses workflow documents using a fixed set of defaults.
type Loader struct {
	defaults Defaults
}

// NewLoader creates a loader applying the given defaults.
func NewLoader(defaults Defaults) *Loader {
	return &Loader{defaults: defaults}
}

// LoadFile reads, schema-checks and converts a workflow document.
func (l *Loader) LoadFile(path string) (*core.WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow %s: %w", path, err)
	}
	ws, err := l.Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", path, err)
	}
	return ws, nil
}

// Parse decodes a document, validates it against the embedded schema and
// converts it into a WorkflowSpec. Semantic checks are left to Validate.
func (l *Loader) Parse(data []byte, format Format) (*core.WorkflowSpec, error) {
	raw, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(raw); err != nil {
		return nil, err
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "decoding workflow document").WithCause(err)
	}
	return l.Convert(&doc)
}

// Convert turns a decoded document into a WorkflowSpec, applying defaults.
func (l *Loader) Convert(doc *Document) (*core.WorkflowSpec, error) {
	ws := &core.WorkflowSpec{
		Name:           doc.Name,
		Description:    doc.Description,
		Problem:        doc.Problem,
		AllowParallel:  l.defaults.AllowParallel,
		MaxParallelism: l.defaults.MaxParallelism,
		Timeout:        l.defaults.Timeout,
		Tools:          make([]core.ToolSpec, 0, len(doc.Tools)),
	}
	if doc.AllowParallel != nil {
		ws.AllowParallel = *doc.AllowParallel
	}
	if doc.MaxParallelism != nil {
		ws.MaxParallelism = *doc.MaxParallelism
	}
	if doc.Timeout != "" {
		d, err := parseDuration("timeout", doc.Timeout)
		if err != nil {
			return nil, err
		}
		ws.Timeout = d
	}

	for i, td := range doc.Tools {
		ts := core.ToolSpec{
			Name:       td.Name,
			Type:       core.ToolType(td.Type),
			DependsOn:  append([]string(nil), td.DependsOn...),
			Timeout:    l.defaults.ToolTimeout,
			MaxRetries: l.defaults.MaxRetries,
			Options:    normalizeNumbers(td.Config),
			Inputs:     td.Inputs,
			Optimize:   td.Optimize,
		}
		if td.Timeout != "" {
			d, err := parseDuration(fmt.Sprintf("tools[%d].timeout", i), td.Timeout)
			if err != nil {
				return nil, err
			}
			ts.Timeout = d
		}
		if td.RetryCount != nil {
			ts.MaxRetries = *td.RetryCount
		}
		ws.Tools = append(ws.Tools, ts)
	}
	return ws, nil
}

// Parse decodes a document with the built-in defaults.
func Parse(data []byte, format Format) (*core.WorkflowSpec, error) {
	return NewLoader(DefaultDefaults()).Parse(data, format)
}

// LoadFile loads a document with the built-in defaults.
func LoadFile(path string) (*core.WorkflowSpec, error) {
	return NewLoader(DefaultDefaults()).LoadFile(path)
}

// toJSON normalizes a document to JSON so schema validation and decoding
// share one path regardless of the source format.
func toJSON(data []byte, format Format) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "workflow document is empty")
	}
	if format == FormatJSON {
		if !json.Valid(data) {
			return nil, core.ErrPlanning(core.CodeInvalidSpec, "workflow document is not valid JSON")
		}
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "workflow document is not valid YAML").WithCause(err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, core.ErrPlanning(core.CodeInvalidSpec, "workflow document cannot be represented as JSON").WithCause(err)
	}
	return out, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, core.ErrPlanning(core.CodeInvalidSpec, fmt.Sprintf("%s: invalid duration %q", field, value)).
			WithDetail("field", field)
	}
	return d, nil
}

// normalizeNumbers converts json.Number values into int64 or float64 so tool
// options carry plain Go numbers.
func normalizeNumbers(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		return normalizeNumbers(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
