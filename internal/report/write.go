package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

// WriteFile renders result into path atomically. An empty format is inferred
// from the file extension.
func WriteFile(path string, result *core.WorkflowResult, format Format) error {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return err
		}
		format = f
	}

	var buf bytes.Buffer
	if err := Render(&buf, result, format); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := atomicWriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
