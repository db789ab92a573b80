package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a lifecycle event asynchronously.
// River serializes this as JSON into its job queue table. It includes a snapshot
// of the record at the time the event was published, so the worker never needs
// to query the database.
type EventJobArgs struct {
	Event       string `json:"event"`
	TenantID    string `json:"tenant_id"`
	RecordID    string `json:"record_id"`
	Hostname    string `json:"hostname"`
	Status      string `json:"status"`
	SSLState    string `json:"ssl_state,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Revision    int64  `json:"revision"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "domain.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a lifecycle event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, rec domain.DomainRecord) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:       string(event),
		TenantID:    rec.TenantID,
		RecordID:    rec.ID,
		Hostname:    rec.Hostname,
		Status:      string(rec.Status),
		SSLState:    rec.SSLState,
		FailureKind: string(rec.FailureKind),
		LastError:   rec.LastError,
		Revision:    rec.Revision,
	}, &river.InsertOpts{
		Queue:       QueueEvents,
		MaxAttempts: eventMaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
