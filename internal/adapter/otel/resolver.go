package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// TracingResolver wraps a domain.TXTResolver with OpenTelemetry tracing.
type TracingResolver struct {
	next   domain.TXTResolver
	tracer trace.Tracer
}

// Compile-time check: TracingResolver implements domain.TXTResolver.
var _ domain.TXTResolver = (*TracingResolver)(nil)

func NewTracingResolver(next domain.TXTResolver) *TracingResolver {
	return &TracingResolver{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "TXTResolver.ResolveTXT",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dns.question.name", name)),
	)
	defer span.End()

	values, err := r.next.ResolveTXT(ctx, name)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("dns.answer.count", len(values)))
	}
	return values, err
}
