package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#9CA3AF")
	colorPrimary = lipgloss.Color("#7C3AED")
)

// styles are bound to one renderer so color follows the destination writer,
// not the process stdout.
type styles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	muted  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	status map[string]lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(colorPrimary),
		label:  r.NewStyle().Foreground(colorMuted).Width(10),
		muted:  r.NewStyle().Foreground(colorMuted),
		header: r.NewStyle().Bold(true).Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
		status: map[string]lipgloss.Style{
			"completed": r.NewStyle().Bold(true).Foreground(colorSuccess),
			"partial":   r.NewStyle().Bold(true).Foreground(colorWarning),
			"skipped":   r.NewStyle().Foreground(colorWarning),
			"failed":    r.NewStyle().Bold(true).Foreground(colorError),
			"cancelled": r.NewStyle().Foreground(colorError),
		},
	}
}

func (s styles) statusText(status string) string {
	if st, ok := s.status[status]; ok {
		return st.Render(status)
	}
	return status
}

func renderText(w io.Writer, res *core.WorkflowResult) error {
	s := newStyles(w)
	var b strings.Builder

	b.WriteString(s.title.Render("Workflow report") + "\n")
	field := func(label, value string) {
		b.WriteString("  " + s.label.Render(label) + " " + value + "\n")
	}
	field("Run", res.RunID)
	field("Workflow", res.Workflow)
	field("Status", s.statusText(string(res.Status)))
	field("Duration", formatMS(res.DurationMS))
	field("Tools", fmt.Sprintf("%d completed, %d failed, %d skipped",
		res.Count(core.ToolStatusCompleted), res.Count(core.ToolStatusFailed), res.Count(core.ToolStatusSkipped)))
	if len(res.Plan) > 0 {
		batches := make([]string, len(res.Plan))
		for i, batch := range res.Plan {
			batches[i] = "[" + strings.Join(batch, ", ") + "]"
		}
		field("Plan", strings.Join(batches, " -> "))
	}

	if names := res.ToolNames(); len(names) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(s.muted).
			Headers("TOOL", "STATUS", "ATTEMPTS", "DURATION", "DETAIL").
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return s.header
				}
				return s.cell
			})
		for _, name := range names {
			tr := res.Tools[name]
			t.Row(name, s.statusText(string(tr.Status)), fmt.Sprintf("%d", tr.Attempts), formatMS(tr.DurationMS), detail(tr))
		}
		b.WriteString("\n" + t.Render() + "\n")
	}

	if len(res.Errors) > 0 {
		b.WriteString("\n" + s.title.Render("Errors") + "\n")
		for _, e := range res.Errors {
			b.WriteString("  - " + e + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// detail summarizes why a tool ended the way it did.
func detail(tr core.ToolResult) string {
	var parts []string
	switch tr.Status {
	case core.ToolStatusFailed:
		parts = append(parts, truncate(tr.Error, 60))
	case core.ToolStatusSkipped:
		parts = append(parts, truncate(tr.SkipReason, 60))
	}
	if n := len(tr.Iterations); n > 0 {
		parts = append(parts, fmt.Sprintf("optimized in %d rounds", n))
	}
	if tr.Corrected {
		parts = append(parts, "corrected")
	}
	return strings.Join(parts, "; ")
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
