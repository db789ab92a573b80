package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// Config holds the orchestrator's tunables.
type Config struct {
	// Product names the well-known TXT label: "_<product>-verify".
	Product         string
	Edge            domain.Edge
	DNSTimeout      time.Duration
	ProviderTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Product == "" {
		c.Product = "domainiq"
	}
	if c.DNSTimeout <= 0 {
		c.DNSTimeout = 5 * time.Second
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	return c
}

// DomainService orchestrates custom domain lifecycle operations.
//
// Every status change is validated against domain.Transitions and committed
// with a compare-and-swap on the record store, taken immediately before and
// after each external call. A lost swap is reported as domain.ErrConflict.
type DomainService struct {
	store     domain.RecordStore
	resolver  domain.TXTResolver
	provider  domain.HostingProvider
	publisher domain.EventPublisher
	validator domain.TransitionValidator
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	wake      func()
}

// NewDomainService creates a service with the given adapters.
func NewDomainService(
	store domain.RecordStore,
	resolver domain.TXTResolver,
	provider domain.HostingProvider,
	publisher domain.EventPublisher,
	validator domain.TransitionValidator,
	cfg Config,
) *DomainService {
	return &DomainService{
		store:     store,
		resolver:  resolver,
		provider:  provider,
		publisher: publisher,
		validator: validator,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		wake:      func() {},
	}
}

// OnTransient registers fn to be called whenever a record enters a status
// the reconciler polls. fn must not block.
func (s *DomainService) OnTransient(fn func()) {
	s.wake = fn
}

// Get returns the tenant's record or domain.ErrNotConfigured.
func (s *DomainService) Get(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	return s.store.Get(ctx, tenantID)
}

// DNSRecords returns the records the tenant must create for their domain.
func (s *DomainService) DNSRecords(ctx context.Context, tenantID string) ([]domain.DNSRecord, error) {
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return domain.PresentedRecords(rec, s.cfg.Product, s.cfg.Edge), nil
}

// SetDomain validates hostname and starts a fresh pending record for the
// tenant, replacing any previous domain.
func (s *DomainService) SetDomain(ctx context.Context, tenantID, hostname string) (domain.DomainRecord, error) {
	host, err := domain.NormalizeHostname(hostname)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	prev, err := s.store.Get(ctx, tenantID)
	hasPrev := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotConfigured) {
		return domain.DomainRecord{}, fmt.Errorf("loading current domain: %w", err)
	}

	token, err := generateToken(s.cfg.Product)
	if err != nil {
		return domain.DomainRecord{}, fmt.Errorf("generating verification token: %w", err)
	}
	id, err := generateID()
	if err != nil {
		return domain.DomainRecord{}, fmt.Errorf("generating record id: %w", err)
	}

	rec := domain.NewDomainRecord(id, tenantID, host, token)
	if hasPrev {
		rec.Revision = prev.Revision + 1
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return domain.DomainRecord{}, fmt.Errorf("storing domain: %w", err)
	}

	if hasPrev && prev.ProviderHostnameID != "" {
		s.releaseHostname(ctx, prev)
	}

	s.publish(ctx, domain.EventDomainSet, rec)
	s.wake()

	return rec, nil
}

// VerifyDomain checks the TXT ownership proof for the tenant's hostname.
// A failed check is recorded on the record, which is returned together with
// an error of kind DNSNotFound, DNSMismatch, DNSTimeout or ProviderError.
func (s *DomainService) VerifyDomain(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	cur, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	// A record that failed at the certificate stage still carries the dead
	// provider hostname; provisioning starts over once ownership is proven.
	stale := cur
	cur, err = s.transition(ctx, cur, domain.EventVerifyStart, func(r *domain.DomainRecord) {
		*r = r.ClearFailure()
		r.VerifiedAt = nil
		r.ProviderHostnameID = ""
		r.SSLState = ""
	})
	if err != nil {
		return domain.DomainRecord{}, err
	}

	if stale.ProviderHostnameID != "" {
		s.releaseHostname(ctx, stale)
	}

	failure := s.checkOwnership(ctx, cur)
	if ctx.Err() != nil {
		// Leave the record in verifying; the reconciler retries it.
		return cur, ctx.Err()
	}

	if failure == nil {
		verifiedAt := s.now()
		return s.transition(ctx, cur, domain.EventVerifySucceed, func(r *domain.DomainRecord) {
			r.VerifiedAt = &verifiedAt
			*r = r.ClearFailure()
		})
	}

	rec, err := s.transition(ctx, cur, domain.EventVerifyFail, func(r *domain.DomainRecord) {
		*r = r.Fail(failure.Kind, failure.Message)
	})
	if err != nil {
		return domain.DomainRecord{}, err
	}
	return rec, failure
}

// ProvisionSSL registers the verified hostname with the hosting provider.
// It only starts provisioning; CheckStatus observes issuance.
func (s *DomainService) ProvisionSSL(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	cur, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	if cur.Status == domain.StatusProvisioningSSL && cur.ProviderHostnameID != "" {
		return cur, nil
	}
	// Ownership must have been proven before a failed record may skip
	// straight back to provisioning.
	if cur.Status == domain.StatusFailed && cur.VerifiedAt == nil {
		return domain.DomainRecord{}, &domain.TransitionError{Event: domain.EventProvisionStart, Current: cur.Status}
	}

	stale := cur
	cur, err = s.transition(ctx, cur, domain.EventProvisionStart, func(r *domain.DomainRecord) {
		*r = r.ClearFailure()
		r.ProviderHostnameID = ""
		r.SSLState = ""
	})
	if err != nil {
		return domain.DomainRecord{}, err
	}

	if stale.ProviderHostnameID != "" {
		s.releaseHostname(ctx, stale)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	providerID, sslState, addErr := s.provider.AddHostname(pctx, cur.Hostname)
	cancel()
	if ctx.Err() != nil {
		return cur, ctx.Err()
	}

	if addErr != nil {
		failure := providerFailure("could not register the domain with the hosting provider", addErr)
		rec, err := s.transition(ctx, cur, domain.EventProvisionFail, func(r *domain.DomainRecord) {
			*r = r.Fail(failure.Kind, failure.Message)
		})
		if err != nil {
			return domain.DomainRecord{}, err
		}
		return rec, failure
	}

	rec, err := s.transition(ctx, cur, domain.EventProvisionStart, func(r *domain.DomainRecord) {
		r.ProviderHostnameID = providerID
		r.SSLState = sslState
	})
	if err != nil {
		// The record was replaced or removed meanwhile; nothing references
		// the hostname just registered.
		s.releaseHostname(ctx, domain.DomainRecord{
			TenantID:           cur.TenantID,
			Hostname:           cur.Hostname,
			ProviderHostnameID: providerID,
		})
		return domain.DomainRecord{}, err
	}
	return rec, nil
}

// CheckStatus polls the hosting provider for certificate issuance. It is safe
// to call repeatedly and writes nothing when the provider reports no change.
func (s *DomainService) CheckStatus(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	cur, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	if _, err := s.validator.Apply(ctx, cur.Status, domain.EventCertificateIssue); err != nil {
		return domain.DomainRecord{}, err
	}
	if cur.ProviderHostnameID == "" {
		return cur, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	status, pollErr := s.provider.GetHostnameStatus(pctx, cur.ProviderHostnameID)
	cancel()
	if ctx.Err() != nil {
		return cur, ctx.Err()
	}

	switch {
	case pollErr != nil:
		return s.failCertificate(ctx, cur, cur.SSLState,
			providerFailure("could not read certificate status from the hosting provider", pollErr))

	case status.TerminalFailure:
		msg := "certificate issuance failed"
		if status.Reason != "" {
			msg += ": " + status.Reason
		}
		return s.failCertificate(ctx, cur, status.SSLState, domain.NewError(domain.KindProviderError, msg, nil))

	case status.Issued:
		if cur.Status == domain.StatusActive && cur.SSLState == status.SSLState && cur.LastError == "" {
			return cur, nil
		}
		return s.transition(ctx, cur, domain.EventCertificateIssue, func(r *domain.DomainRecord) {
			r.SSLState = status.SSLState
			*r = r.ClearFailure()
		})

	default:
		if cur.SSLState == status.SSLState {
			return cur, nil
		}
		return s.update(ctx, cur, cur.Status, func(r *domain.DomainRecord) {
			r.SSLState = status.SSLState
		})
	}
}

// RemoveDomain clears the tenant's domain and best-effort releases the
// provider hostname. It is allowed from any status.
func (s *DomainService) RemoveDomain(ctx context.Context, tenantID string) error {
	cur, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	if cur.ProviderHostnameID != "" {
		s.releaseHostname(ctx, cur)
	}

	if err := s.store.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("deleting domain: %w", err)
	}

	s.publish(ctx, domain.EventDomainRemoved, cur)
	return nil
}

func (s *DomainService) failCertificate(ctx context.Context, cur domain.DomainRecord, sslState string, failure *domain.Error) (domain.DomainRecord, error) {
	rec, err := s.transition(ctx, cur, domain.EventCertificateFail, func(r *domain.DomainRecord) {
		r.SSLState = sslState
		*r = r.Fail(failure.Kind, failure.Message)
	})
	if err != nil {
		return domain.DomainRecord{}, err
	}
	return rec, failure
}

// transition validates event from cur's status and commits the result.
func (s *DomainService) transition(ctx context.Context, cur domain.DomainRecord, event domain.Event, mutate func(*domain.DomainRecord)) (domain.DomainRecord, error) {
	dst, err := s.validator.Apply(ctx, cur.Status, event)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	next, err := s.update(ctx, cur, dst, mutate)
	if err != nil {
		return domain.DomainRecord{}, err
	}

	s.logger.InfoContext(ctx, "domain transition",
		"tenant_id", next.TenantID,
		"hostname", next.Hostname,
		"event", event,
		"from", cur.Status,
		"to", next.Status,
	)
	s.publish(ctx, event, next)
	if next.Status.Transient() {
		s.wake()
	}
	return next, nil
}

// update writes cur with mutate applied and status set, guarded by cur.
func (s *DomainService) update(ctx context.Context, cur domain.DomainRecord, status domain.Status, mutate func(*domain.DomainRecord)) (domain.DomainRecord, error) {
	next := cur
	mutate(&next)
	next.Status = status
	next.Revision = cur.Revision + 1
	next.UpdatedAt = s.now()

	ok, err := s.store.CompareAndSwap(ctx, cur.Guard(), next)
	if err != nil {
		return domain.DomainRecord{}, fmt.Errorf("updating domain: %w", err)
	}
	if !ok {
		return domain.DomainRecord{}, domain.ErrConflict
	}
	return next, nil
}

// checkOwnership resolves the verification TXT name and compares the values
// against the record's token. It returns nil when the token is present.
func (s *DomainService) checkOwnership(ctx context.Context, rec domain.DomainRecord) *domain.Error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DNSTimeout)
	defer cancel()

	values, err := s.resolver.ResolveTXT(dctx, domain.VerificationName(s.cfg.Product, rec.Hostname))
	if err != nil {
		var classified *domain.Error
		switch {
		case errors.As(err, &classified):
			return classified
		case errors.Is(err, context.DeadlineExceeded):
			return domain.NewError(domain.KindDNSTimeout, domain.ErrDNSTimeout.Message, err)
		default:
			return domain.NewError(domain.KindProviderError, "DNS lookup failed: "+err.Error(), err)
		}
	}

	if len(values) == 0 {
		return domain.ErrDNSNotFound
	}
	if !slices.Contains(values, rec.VerificationToken) {
		return domain.ErrDNSMismatch
	}
	return nil
}

func (s *DomainService) releaseHostname(ctx context.Context, rec domain.DomainRecord) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProviderTimeout)
	defer cancel()

	if err := s.provider.RemoveHostname(pctx, rec.ProviderHostnameID); err != nil {
		s.logger.WarnContext(ctx, "releasing provider hostname failed",
			"tenant_id", rec.TenantID,
			"hostname", rec.Hostname,
			"provider_hostname_id", rec.ProviderHostnameID,
			"error", err,
		)
	}
}

func (s *DomainService) publish(ctx context.Context, event domain.Event, rec domain.DomainRecord) {
	if err := s.publisher.Publish(ctx, event, rec); err != nil {
		s.logger.WarnContext(ctx, "publishing domain event failed",
			"tenant_id", rec.TenantID,
			"event", event,
			"error", err,
		)
	}
}

func providerFailure(msg string, err error) *domain.Error {
	var classified *domain.Error
	if errors.As(err, &classified) && classified.Kind == domain.KindProviderError {
		return classified
	}
	return domain.NewError(domain.KindProviderError, msg+": "+err.Error(), err)
}
