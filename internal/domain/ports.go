package domain

import "context"

// RecordStore defines the persistence contract for domain records.
type RecordStore interface {
	// Get returns ErrNotConfigured when the tenant has no record.
	Get(ctx context.Context, tenantID string) (DomainRecord, error)
	// Put creates or replaces the tenant's record unconditionally.
	Put(ctx context.Context, rec DomainRecord) error
	// CompareAndSwap writes next only if the stored record still matches
	// expected. On success the stored revision is expected.Revision+1.
	// A false result means another transition got there first.
	CompareAndSwap(ctx context.Context, expected Guard, next DomainRecord) (bool, error)
	// Delete removes the tenant's record. Deleting an absent record is not an error.
	Delete(ctx context.Context, tenantID string) error
	ListByStatus(ctx context.Context, statuses ...Status) ([]DomainRecord, error)
}

// TXTResolver looks up TXT records. Failures should be *Error values of kind
// KindDNSNotFound, KindDNSTimeout or KindProviderError.
type TXTResolver interface {
	ResolveTXT(ctx context.Context, name string) ([]string, error)
}

// HostnameStatus is the provider's view of a custom hostname's certificate.
type HostnameStatus struct {
	SSLState        string
	Issued          bool
	TerminalFailure bool
	Reason          string
}

// HostingProvider registers custom hostnames on the hosting edge and reports
// certificate issuance.
type HostingProvider interface {
	AddHostname(ctx context.Context, hostname string) (providerID, sslState string, err error)
	GetHostnameStatus(ctx context.Context, providerID string) (HostnameStatus, error)
	RemoveHostname(ctx context.Context, providerID string) error
}

// EventPublisher defines the contract for emitting lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, rec DomainRecord) error
}

// TransitionValidator checks an event against the lifecycle and returns the
// destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
