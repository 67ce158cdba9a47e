// Package report renders workflow results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// Format selects how a result is rendered.
type Format string

// Formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats returns the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML}
}

// ParseFormat parses a format name. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, json or yaml)", s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return FormatText, nil
	}
	return ParseFormat(ext)
}

// Render writes result to w in the given format.
func Render(w io.Writer, result *core.WorkflowResult, format Format) error {
	if result == nil {
		return fmt.Errorf("rendering report: no result")
	}
	switch format {
	case FormatText, "":
		return renderText(w, result)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown report format %q", format)
}
