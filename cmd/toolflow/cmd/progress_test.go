package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
)

func TestProgressPrinter_Correction(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.print(events.NewToolCorrectedEvent("run-1", "wf", "summarize", []string{"low confidence"}, true))
	assert.Contains(t, buf.String(), "summarize output corrected")
	assert.NotContains(t, buf.String(), "rejected")

	buf.Reset()
	p.print(events.NewToolCorrectedEvent("run-1", "wf", "summarize", []string{"low confidence"}, false))
	assert.Contains(t, buf.String(), "summarize correction rejected, original output kept")
	assert.NotContains(t, buf.String(), "output corrected")
}
