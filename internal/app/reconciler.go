package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// ReconcilerConfig controls the background reconciliation loop.
type ReconcilerConfig struct {
	Interval    time.Duration
	Concurrency int
	// AutoProvision starts SSL provisioning for verified records that have
	// not been registered with the provider yet.
	AutoProvision bool
	// VerifyRetryWindow keeps re-checking records whose verification failed
	// on DNS grounds until they are this old. Zero disables it.
	VerifyRetryWindow time.Duration
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Reconciler advances records stuck in transient states without user action.
// It idles while no record needs work and resumes on Wake.
type Reconciler struct {
	store  domain.RecordStore
	svc    *DomainService
	cfg    ReconcilerConfig
	logger *slog.Logger
	now    func() time.Time
	wakeCh chan struct{}
}

type step struct {
	name string
	run  func(ctx context.Context, tenantID string) (domain.DomainRecord, error)
}

// NewReconciler creates a reconciler driving svc over the records in store.
func NewReconciler(store domain.RecordStore, svc *DomainService, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store:  store,
		svc:    svc,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		wakeCh: make(chan struct{}, 1),
	}
}

// Wake asks an idle loop to run a pass. It never blocks.
func (r *Reconciler) Wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Run reconciles until ctx is cancelled. Passes repeat every Interval while
// there is work; with none, the loop waits for Wake.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reconciler started",
		"interval", r.cfg.Interval,
		"concurrency", r.cfg.Concurrency,
	)

	for {
		// A wake-up raised by this pass's own transitions is already covered.
		select {
		case <-r.wakeCh:
		default:
		}

		n, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "reconciler stopped")
			return nil
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "reconcile pass failed", "error", err)
		}

		if n == 0 && err == nil {
			r.logger.DebugContext(ctx, "reconciler idle")
			select {
			case <-ctx.Done():
				r.logger.InfoContext(ctx, "reconciler stopped")
				return nil
			case <-r.wakeCh:
			}
			continue
		}

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "reconciler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single pass and returns how many records it acted on.
// Per-tenant failures are logged and do not stop the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	statuses := []domain.Status{
		domain.StatusPending,
		domain.StatusVerifying,
		domain.StatusVerified,
		domain.StatusProvisioningSSL,
	}
	if r.cfg.VerifyRetryWindow > 0 {
		statuses = append(statuses, domain.StatusFailed)
	}

	records, err := r.store.ListByStatus(ctx, statuses...)
	if err != nil {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	n := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		st, ok := r.plan(rec)
		if !ok {
			continue
		}
		n++
		g.Go(func() error {
			r.apply(ctx, rec, st)
			return nil
		})
	}
	_ = g.Wait()

	return n, nil
}

func (r *Reconciler) plan(rec domain.DomainRecord) (step, bool) {
	verify := step{name: "verify", run: r.svc.VerifyDomain}
	provision := step{name: "provision", run: r.svc.ProvisionSSL}
	check := step{name: "check", run: r.svc.CheckStatus}

	switch rec.Status {
	case domain.StatusPending, domain.StatusVerifying:
		return verify, true
	case domain.StatusVerified:
		if rec.ProviderHostnameID != "" {
			return check, true
		}
		return provision, r.cfg.AutoProvision
	case domain.StatusProvisioningSSL:
		if rec.ProviderHostnameID == "" {
			return provision, true
		}
		return check, true
	case domain.StatusFailed:
		return verify, r.retryVerification(rec)
	}
	return step{}, false
}

func (r *Reconciler) retryVerification(rec domain.DomainRecord) bool {
	switch rec.FailureKind {
	case domain.KindDNSNotFound, domain.KindDNSMismatch, domain.KindDNSTimeout:
	default:
		return false
	}
	return r.now().Sub(rec.CreatedAt) < r.cfg.VerifyRetryWindow
}

func (r *Reconciler) apply(ctx context.Context, rec domain.DomainRecord, st step) {
	got, err := st.run(ctx, rec.TenantID)
	if err == nil {
		if got.Status != rec.Status {
			r.logger.InfoContext(ctx, "reconciled domain",
				"tenant_id", rec.TenantID,
				"hostname", rec.Hostname,
				"step", st.name,
				"from", rec.Status,
				"to", got.Status,
			)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	level := slog.LevelWarn
	switch domain.KindOf(err) {
	case domain.KindConflict, domain.KindNotConfigured, domain.KindInvalidState:
		// The record moved on between listing and acting.
		level = slog.LevelDebug
	case domain.KindDNSNotFound, domain.KindDNSMismatch, domain.KindDNSTimeout:
		level = slog.LevelInfo
	}
	r.logger.Log(ctx, level, "reconcile step failed",
		"tenant_id", rec.TenantID,
		"hostname", rec.Hostname,
		"step", st.name,
		"kind", domain.KindOf(err),
		"error", err,
	)
}
