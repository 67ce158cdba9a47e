package invoker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hugo-lorenzo-mato/toolflow/internal/core"
	"github.com/hugo-lorenzo-mato/toolflow/internal/tracing"
)

// Traced records a client span around every call to the wrapped invoker.
type Traced struct {
	next   core.Invoker
	tracer trace.Tracer
	kind   string
}

// NewTraced wraps next. kind names the transport in span attributes.
func NewTraced(next core.Invoker, tracer trace.Tracer, kind string) *Traced {
	if tracer == nil {
		tracer = tracing.Tracer(nil)
	}
	return &Traced{next: next, tracer: tracer, kind: kind}
}

// Invoke implements core.Invoker.
func (t *Traced) Invoke(ctx context.Context, tool string, input, config map[string]any) (map[string]any, error) {
	ctx, span := t.tracer.Start(ctx, "tool.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			tracing.AttrTool.String(tool),
			attribute.String("toolflow.transport", t.kind),
			attribute.Int("toolflow.input.keys", len(input)),
		),
	)
	defer span.End()

	out, err := t.next.Invoke(ctx, tool, input, config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("toolflow.error.category", string(core.GetCategory(err))),
			attribute.Bool("toolflow.error.retryable", core.IsRetryable(err)),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("toolflow.output.keys", len(out)))
	return out, nil
}
