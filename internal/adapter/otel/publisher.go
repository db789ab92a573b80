package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing
// and counts published lifecycle events by type and resulting status.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
	events metric.Int64Counter
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) (*TracingPublisher, error) {
	events, err := otel.Meter(tracerName).Int64Counter("domainiq.lifecycle.events",
		metric.WithDescription("Lifecycle events published, by event and resulting status."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
		events: events,
	}, nil
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, rec domain.DomainRecord) error {
	attrs := []attribute.KeyValue{
		attribute.String("event.type", string(event)),
		attribute.String("domain.status", string(rec.Status)),
	}
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(attrs...),
		trace.WithAttributes(
			attribute.String("tenant.id", rec.TenantID),
			attribute.String("domain.hostname", rec.Hostname),
		),
	)
	defer span.End()

	p.events.Add(ctx, 1, metric.WithAttributes(attrs...))

	err := p.next.Publish(ctx, event, rec)
	if err != nil {
		recordError(span, err)
	}
	return err
}
