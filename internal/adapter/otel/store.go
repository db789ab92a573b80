package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/domainiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/domainiq/internal/adapter/otel"

// TracingStore wraps a domain.RecordStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next   domain.RecordStore
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.RecordStore.
var _ domain.RecordStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.RecordStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) Get(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	ctx, span := s.tracer.Start(ctx, "RecordStore.Get",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	rec, err := s.next.Get(ctx, tenantID)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.String("domain.status", string(rec.Status)))
	}
	return rec, err
}

func (s *TracingStore) Put(ctx context.Context, rec domain.DomainRecord) error {
	ctx, span := s.tracer.Start(ctx, "RecordStore.Put",
		trace.WithAttributes(
			attribute.String("tenant.id", rec.TenantID),
			attribute.String("domain.hostname", rec.Hostname),
		),
	)
	defer span.End()

	err := s.next.Put(ctx, rec)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func (s *TracingStore) CompareAndSwap(ctx context.Context, expected domain.Guard, next domain.DomainRecord) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "RecordStore.CompareAndSwap",
		trace.WithAttributes(
			attribute.String("tenant.id", next.TenantID),
			attribute.String("domain.status.expected", string(expected.Status)),
			attribute.String("domain.status.next", string(next.Status)),
			attribute.Int64("domain.revision", expected.Revision),
		),
	)
	defer span.End()

	ok, err := s.next.CompareAndSwap(ctx, expected, next)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Bool("cas.swapped", ok))
	}
	return ok, err
}

func (s *TracingStore) Delete(ctx context.Context, tenantID string) error {
	ctx, span := s.tracer.Start(ctx, "RecordStore.Delete",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	err := s.next.Delete(ctx, tenantID)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func (s *TracingStore) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.DomainRecord, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	ctx, span := s.tracer.Start(ctx, "RecordStore.ListByStatus",
		trace.WithAttributes(attribute.StringSlice("filter.statuses", names)),
	)
	defer span.End()

	records, err := s.next.ListByStatus(ctx, statuses...)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.Int("result.count", len(records)))
	}
	return records, err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind := domain.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("error.kind", string(kind)))
	}
}
