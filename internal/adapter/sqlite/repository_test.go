package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/domainiq/internal/adapter/sqlite"
	"github.com/neomorfeo/domainiq/internal/domain"
)

// newTestRepo creates an in-memory SQLite repository for testing.
func newTestRepo(t *testing.T) *sqlite.DomainRepository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustPut(t *testing.T, repo *sqlite.DomainRepository, rec domain.DomainRecord) {
	t.Helper()
	if err := repo.Put(context.Background(), rec); err != nil {
		t.Fatalf("mustPut failed: %v", err)
	}
}

func mustGet(t *testing.T, repo *sqlite.DomainRepository, tenantID string) domain.DomainRecord {
	t.Helper()
	rec, err := repo.Get(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", tenantID, err)
	}
	return rec
}

func TestPut_And_Get(t *testing.T) {
	repo := newTestRepo(t)

	rec := domain.NewDomainRecord("r-1", "t-1", "shop.acme.com", "domainiq-verification=abc")
	mustPut(t, repo, rec)

	got := mustGet(t, repo, "t-1")
	if got.ID != "r-1" {
		t.Errorf("ID = %q, want %q", got.ID, "r-1")
	}
	if got.Hostname != "shop.acme.com" {
		t.Errorf("Hostname = %q, want %q", got.Hostname, "shop.acme.com")
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusPending)
	}
	if got.VerificationToken != "domainiq-verification=abc" {
		t.Errorf("VerificationToken = %q", got.VerificationToken)
	}
	if got.VerifiedAt != nil {
		t.Errorf("VerifiedAt = %v, want nil", got.VerifiedAt)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestGet_NotConfigured(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGet_CorruptTimestamp(t *testing.T) {
	for _, column := range []string{"created_at", "updated_at", "verified_at"} {
		t.Run(column, func(t *testing.T) {
			repo := newTestRepo(t)
			mustPut(t, repo, domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok"))

			query := fmt.Sprintf("UPDATE domains SET %s = 'yesterday' WHERE tenant_id = ?", column)
			if _, err := repo.DB().Exec(query, "t-1"); err != nil {
				t.Fatalf("corrupting %s: %v", column, err)
			}

			_, err := repo.Get(context.Background(), "t-1")
			if err == nil {
				t.Fatalf("expected a scan error for a corrupt %s", column)
			}
			if errors.Is(err, domain.ErrNotConfigured) {
				t.Errorf("corrupt row reported as absent: %v", err)
			}
		})
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	repo := newTestRepo(t)

	first := domain.NewDomainRecord("r-1", "t-1", "old.acme.com", "tok-1")
	first.Status = domain.StatusActive
	first.ProviderHostnameID = "cf-1"
	mustPut(t, repo, first)

	second := domain.NewDomainRecord("r-2", "t-1", "new.acme.com", "tok-2")
	second.Revision = 7
	mustPut(t, repo, second)

	got := mustGet(t, repo, "t-1")
	if got.ID != "r-2" || got.Hostname != "new.acme.com" {
		t.Errorf("got %q/%q, want r-2/new.acme.com", got.ID, got.Hostname)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.ProviderHostnameID != "" {
		t.Errorf("ProviderHostnameID = %q, want empty", got.ProviderHostnameID)
	}
	if got.Revision != 7 {
		t.Errorf("Revision = %d, want 7", got.Revision)
	}
}

func TestCompareAndSwap(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok")
	mustPut(t, repo, rec)

	verifiedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := rec
	next.Status = domain.StatusVerified
	next.VerifiedAt = &verifiedAt
	next.SSLState = "pending_validation"
	next.ProviderHostnameID = "cf-1"

	ok, err := repo.CompareAndSwap(ctx, rec.Guard(), next)
	if err != nil {
		t.Fatalf("CompareAndSwap failed: %v", err)
	}
	if !ok {
		t.Fatal("CompareAndSwap should succeed against the current guard")
	}

	got := mustGet(t, repo, "t-1")
	if got.Status != domain.StatusVerified {
		t.Errorf("Status = %q, want verified", got.Status)
	}
	if got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(verifiedAt) {
		t.Errorf("VerifiedAt = %v, want %v", got.VerifiedAt, verifiedAt)
	}
	if got.SSLState != "pending_validation" || got.ProviderHostnameID != "cf-1" {
		t.Errorf("provider fields = %q/%q", got.SSLState, got.ProviderHostnameID)
	}
}

func TestCompareAndSwap_StaleGuard(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok")
	mustPut(t, repo, rec)

	tests := []struct {
		name  string
		guard domain.Guard
	}{
		{"wrong revision", domain.Guard{ID: "r-1", Status: domain.StatusPending, Revision: 2}},
		{"wrong status", domain.Guard{ID: "r-1", Status: domain.StatusVerifying, Revision: 1}},
		{"wrong generation", domain.Guard{ID: "r-0", Status: domain.StatusPending, Revision: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := rec
			next.Status = domain.StatusVerifying
			ok, err := repo.CompareAndSwap(ctx, tt.guard, next)
			if err != nil {
				t.Fatalf("CompareAndSwap failed: %v", err)
			}
			if ok {
				t.Fatal("CompareAndSwap should fail with a stale guard")
			}
		})
	}

	if got := mustGet(t, repo, "t-1"); got.Status != domain.StatusPending || got.Revision != 1 {
		t.Errorf("record changed: %q rev %d", got.Status, got.Revision)
	}
}

func TestCompareAndSwap_Absent(t *testing.T) {
	repo := newTestRepo(t)

	rec := domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok")
	ok, err := repo.CompareAndSwap(context.Background(), rec.Guard(), rec)
	if err != nil {
		t.Fatalf("CompareAndSwap failed: %v", err)
	}
	if ok {
		t.Error("CompareAndSwap on an absent record should fail")
	}
}

func TestCompareAndSwap_ConcurrentWritersOneWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok")
	mustPut(t, repo, rec)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := rec
			next.Status = domain.StatusVerifying
			next.LastError = fmt.Sprintf("writer %d", i)
			ok, err := repo.CompareAndSwap(ctx, rec.Guard(), next)
			if err != nil {
				t.Errorf("CompareAndSwap failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", wins)
	}
	if got := mustGet(t, repo, "t-1"); got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustPut(t, repo, domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok"))

	if err := repo.Delete(ctx, "t-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "t-1"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := repo.Delete(ctx, "t-1"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	repo := newTestRepo(t)

	statuses := []domain.Status{
		domain.StatusPending,
		domain.StatusVerifying,
		domain.StatusActive,
		domain.StatusFailed,
		domain.StatusProvisioningSSL,
	}
	for i, s := range statuses {
		rec := domain.NewDomainRecord(fmt.Sprintf("r-%d", i), fmt.Sprintf("t-%d", i), fmt.Sprintf("h%d.acme.com", i), "tok")
		rec.Status = s
		mustPut(t, repo, rec)
	}

	got, err := repo.ListByStatus(context.Background(), domain.StatusPending, domain.StatusProvisioningSSL)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	for _, rec := range got {
		if rec.Status != domain.StatusPending && rec.Status != domain.StatusProvisioningSSL {
			t.Errorf("unexpected status %q", rec.Status)
		}
	}
}

func TestListByStatus_NoStatuses(t *testing.T) {
	repo := newTestRepo(t)
	mustPut(t, repo, domain.NewDomainRecord("r-1", "t-1", "acme.com", "tok"))

	got, err := repo.ListByStatus(context.Background())
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}
