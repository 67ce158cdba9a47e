package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

const pipelineYAML = `
name: code-review
problem: Review the payment service for reliability issues
allow_parallel: true
max_parallelism: 2
timeout: 10m
tools:
  - name: fetch
    type: analysis
    config:
      repo: payments
      depth: 3
  - name: summarize
    type: prompt-based
    depends_on: [fetch]
    timeout: 45s
    retry_count: 1
    inputs:
      files: fetch.files[*].path
  - name: report
    type: analysis
    depends_on: [summarize]
    optimize: true
`

func TestParse_YAML(t *testing.T) {
	ws, err := Parse([]byte(pipelineYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "code-review", ws.Name)
	assert.Equal(t, 10*time.Minute, ws.Timeout)
	assert.True(t, ws.AllowParallel)
	assert.Equal(t, 2, ws.MaxParallelism)
	require.Len(t, ws.Tools, 3)

	fetch := ws.Tools[0]
	assert.Equal(t, core.ToolTypeAnalysis, fetch.Type)
	assert.Equal(t, DefaultDefaults().ToolTimeout, fetch.Timeout)
	assert.Equal(t, DefaultDefaults().MaxRetries, fetch.MaxRetries)
	assert.Equal(t, int64(3), fetch.Options["depth"])
	assert.Equal(t, "payments", fetch.Options["repo"])

	summarize := ws.Tools[1]
	assert.Equal(t, 45*time.Second, summarize.Timeout)
	assert.Equal(t, 1, summarize.MaxRetries)
	assert.Equal(t, []string{"fetch"}, summarize.DependsOn)
	assert.Equal(t, "fetch.files[*].path", summarize.Inputs["files"])
	assert.True(t, summarize.WantsOptimization())

	report := ws.Tools[2]
	require.NotNil(t, report.Optimize)
	assert.True(t, report.WantsOptimization())
}

func TestParse_JSON(t *testing.T) {
	doc := `{"name":"wf","tools":[{"name":"a","type":"analysis","retry_count":0}]}`
	ws, err := Parse([]byte(doc), FormatJSON)
	require.NoError(t, err)
	require.Len(t, ws.Tools, 1)
	assert.Equal(t, 0, ws.Tools[0].MaxRetries)
}

func TestParse_AppliesLoaderDefaults(t *testing.T) {
	l := NewLoader(Defaults{
		Timeout:        time.Minute,
		ToolTimeout:    5 * time.Second,
		MaxRetries:     7,
		AllowParallel:  false,
		MaxParallelism: 1,
	})
	ws, err := l.Parse([]byte("name: wf\ntools:\n  - name: a\n    type: analysis\n"), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, ws.Timeout)
	assert.False(t, ws.AllowParallel)
	assert.Equal(t, 5*time.Second, ws.Tools[0].Timeout)
	assert.Equal(t, 7, ws.Tools[0].MaxRetries)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "tools: []\n"},
		{"unknown field", "name: wf\nretries: 3\ntools: []\n"},
		{"negative retry", "name: wf\ntools:\n  - name: a\n    type: analysis\n    retry_count: -1\n"},
		{"bad duration", "name: wf\ntimeout: soon\ntools: []\n"},
		{"tool without type", "name: wf\ntools:\n  - name: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrPlanning(core.CodeInvalidSpec, "")), "got %v", err)
		})
	}
}

func TestParse_EmptyAndMalformed(t *testing.T) {
	_, err := Parse([]byte("   "), FormatYAML)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))

	_, err = Parse([]byte("{not json"), FormatJSON)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))

	_, err = Parse([]byte("name: [unclosed"), FormatYAML)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipelineYAML), 0o600))

	ws, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "summarize", "report"}, ws.ToolNames())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("wf.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("wf.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("wf"))
}
