package domain

import "time"

// Status represents the lifecycle state of a tenant's custom domain.
type Status string

const (
	StatusPending         Status = "pending"
	StatusVerifying       Status = "verifying"
	StatusVerified        Status = "verified"
	StatusProvisioningSSL Status = "provisioning_ssl"
	StatusActive          Status = "active"
	StatusFailed          Status = "failed"
)

// Transient reports whether the reconciler should keep polling a record in s.
func (s Status) Transient() bool {
	switch s {
	case StatusPending, StatusVerifying, StatusVerified, StatusProvisioningSSL:
		return true
	}
	return false
}

// Event represents an action that triggers a state transition.
type Event string

const (
	EventDomainSet        Event = "domain_set"
	EventVerifyStart      Event = "verify_start"
	EventVerifySucceed    Event = "verify_succeed"
	EventVerifyFail       Event = "verify_fail"
	EventProvisionStart   Event = "provision_start"
	EventProvisionFail    Event = "provision_fail"
	EventCertificateIssue Event = "certificate_issue"
	EventCertificateFail  Event = "certificate_fail"
	EventDomainRemoved    Event = "domain_removed"
)

// Transition defines a valid state change: an event moves a record from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the domain lifecycle.
// SetDomain and RemoveDomain are allowed from any state and are not listed.
var Transitions = []Transition{
	{Event: EventVerifyStart, Src: StatusPending, Dst: StatusVerifying},
	{Event: EventVerifyStart, Src: StatusVerifying, Dst: StatusVerifying},
	{Event: EventVerifyStart, Src: StatusFailed, Dst: StatusVerifying},
	{Event: EventVerifySucceed, Src: StatusVerifying, Dst: StatusVerified},
	{Event: EventVerifyFail, Src: StatusVerifying, Dst: StatusFailed},

	{Event: EventProvisionStart, Src: StatusVerified, Dst: StatusProvisioningSSL},
	{Event: EventProvisionStart, Src: StatusProvisioningSSL, Dst: StatusProvisioningSSL},
	{Event: EventProvisionStart, Src: StatusFailed, Dst: StatusProvisioningSSL},
	{Event: EventProvisionFail, Src: StatusProvisioningSSL, Dst: StatusFailed},

	{Event: EventCertificateIssue, Src: StatusVerified, Dst: StatusActive},
	{Event: EventCertificateIssue, Src: StatusProvisioningSSL, Dst: StatusActive},
	{Event: EventCertificateIssue, Src: StatusActive, Dst: StatusActive},
	{Event: EventCertificateFail, Src: StatusVerified, Dst: StatusFailed},
	{Event: EventCertificateFail, Src: StatusProvisioningSSL, Dst: StatusFailed},
	{Event: EventCertificateFail, Src: StatusActive, Dst: StatusFailed},
}

// DomainRecord is one tenant's custom domain configuration and lifecycle state.
// A tenant without a record has no domain configured.
type DomainRecord struct {
	TenantID string
	// ID identifies this generation of the record. SetDomain always issues a
	// new one, so a guard taken before a remove/re-add never matches again.
	ID                 string
	Hostname           string
	Status             Status
	VerificationToken  string
	VerifiedAt         *time.Time
	SSLState           string
	ProviderHostnameID string
	FailureKind        ErrorKind
	LastError          string
	Revision           int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewDomainRecord creates a record in the initial "pending" state.
func NewDomainRecord(id, tenantID, hostname, token string) DomainRecord {
	now := time.Now().UTC()
	return DomainRecord{
		TenantID:          tenantID,
		ID:                id,
		Hostname:          hostname,
		Status:            StatusPending,
		VerificationToken: token,
		Revision:          1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Guard returns the compare-and-swap guard matching the record as read.
func (r DomainRecord) Guard() Guard {
	return Guard{ID: r.ID, Status: r.Status, Revision: r.Revision}
}

// Fail returns a copy of r moved to failed with the reason recorded.
func (r DomainRecord) Fail(kind ErrorKind, message string) DomainRecord {
	r.Status = StatusFailed
	r.FailureKind = kind
	r.LastError = message
	return r
}

// ClearFailure returns a copy of r without failure details.
func (r DomainRecord) ClearFailure() DomainRecord {
	r.FailureKind = ""
	r.LastError = ""
	return r
}

// Guard is the expected current state for a compare-and-swap write.
type Guard struct {
	ID       string
	Status   Status
	Revision int64
}
