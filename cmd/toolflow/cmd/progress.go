package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/toolflow/internal/events"
)

// watchProgress prints tool transitions to w until the returned function is
// called. Events already buffered are printed before it returns.
func watchProgress(bus *events.EventBus, w io.Writer) func() {
	ch := bus.Subscribe(
		events.TypeBatchStarted,
		events.TypeToolStarted,
		events.TypeToolRetrying,
		events.TypeToolCompleted,
		events.TypeToolFailed,
		events.TypeToolSkipped,
		events.TypeToolOptimized,
		events.TypeToolCorrected,
	)
	p := newProgressPrinter(w)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			p.print(e)
		}
	}()

	return func() {
		bus.Unsubscribe(ch)
		<-done
	}
}

type progressPrinter struct {
	w       io.Writer
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	r := lipgloss.NewRenderer(w)
	return &progressPrinter{
		w:       w,
		dim:     r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
	}
}

func (p *progressPrinter) print(e events.Event) {
	var line string
	switch ev := e.(type) {
	case events.BatchStartedEvent:
		line = p.dim.Render(fmt.Sprintf("batch %d: %s", ev.Index+1, strings.Join(ev.Tools, ", ")))
	case events.ToolStartedEvent:
		if ev.Attempt > 1 {
			line = fmt.Sprintf("  %s %s (attempt %d)", p.dim.Render("..."), ev.Tool, ev.Attempt)
		} else {
			line = fmt.Sprintf("  %s %s", p.dim.Render("..."), ev.Tool)
		}
	case events.ToolRetryingEvent:
		line = fmt.Sprintf("  %s %s retrying in %s: %s", p.warn.Render("~"), ev.Tool, ev.Delay, ev.Error)
	case events.ToolCompletedEvent:
		line = fmt.Sprintf("  %s %s %s", p.ok.Render("ok"), ev.Tool, p.dim.Render(ev.Duration.String()))
	case events.ToolFailedEvent:
		line = fmt.Sprintf("  %s %s: %s", p.failure.Render("failed"), ev.Tool, ev.Error)
	case events.ToolSkippedEvent:
		line = fmt.Sprintf("  %s %s: %s", p.dim.Render("skipped"), ev.Tool, ev.Reason)
	case events.ToolOptimizedEvent:
		line = fmt.Sprintf("  %s %s input refined in %d rounds", p.dim.Render("*"), ev.Tool, ev.Rounds)
	case events.ToolCorrectedEvent:
		if ev.Accepted {
			line = fmt.Sprintf("  %s %s output corrected", p.dim.Render("*"), ev.Tool)
		} else {
			line = fmt.Sprintf("  %s %s correction rejected, original output kept", p.warn.Render("*"), ev.Tool)
		}
	default:
		return
	}
	fmt.Fprintln(p.w, line)
}
