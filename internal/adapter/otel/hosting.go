package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// TracingHostingProvider wraps a domain.HostingProvider with OpenTelemetry tracing.
type TracingHostingProvider struct {
	next   domain.HostingProvider
	tracer trace.Tracer
}

// Compile-time check: TracingHostingProvider implements domain.HostingProvider.
var _ domain.HostingProvider = (*TracingHostingProvider)(nil)

func NewTracingHostingProvider(next domain.HostingProvider) *TracingHostingProvider {
	return &TracingHostingProvider{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingHostingProvider) AddHostname(ctx context.Context, hostname string) (string, string, error) {
	ctx, span := p.tracer.Start(ctx, "HostingProvider.AddHostname",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("domain.hostname", hostname)),
	)
	defer span.End()

	id, sslState, err := p.next.AddHostname(ctx, hostname)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(
			attribute.String("provider.hostname_id", id),
			attribute.String("provider.ssl_state", sslState),
		)
	}
	return id, sslState, err
}

func (p *TracingHostingProvider) GetHostnameStatus(ctx context.Context, providerID string) (domain.HostnameStatus, error) {
	ctx, span := p.tracer.Start(ctx, "HostingProvider.GetHostnameStatus",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider.hostname_id", providerID)),
	)
	defer span.End()

	st, err := p.next.GetHostnameStatus(ctx, providerID)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(
			attribute.String("provider.ssl_state", st.SSLState),
			attribute.Bool("provider.issued", st.Issued),
		)
	}
	return st, err
}

func (p *TracingHostingProvider) RemoveHostname(ctx context.Context, providerID string) error {
	ctx, span := p.tracer.Start(ctx, "HostingProvider.RemoveHostname",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider.hostname_id", providerID)),
	)
	defer span.End()

	err := p.next.RemoveHostname(ctx, providerID)
	if err != nil {
		recordError(span, err)
	}
	return err
}
