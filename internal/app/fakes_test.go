package app_test

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// --- Store ---

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.DomainRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.DomainRecord)}
}

func (m *memStore) Get(_ context.Context, tenantID string) (domain.DomainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tenantID]
	if !ok {
		return domain.DomainRecord{}, domain.ErrNotConfigured
	}
	return rec, nil
}

func (m *memStore) Put(_ context.Context, rec domain.DomainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.TenantID] = rec
	return nil
}

func (m *memStore) CompareAndSwap(_ context.Context, expected domain.Guard, next domain.DomainRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[next.TenantID]
	if !ok || cur.Guard() != expected {
		return false, nil
	}
	next.Revision = expected.Revision + 1
	m.records[next.TenantID] = next
	return true, nil
}

func (m *memStore) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tenantID)
	return nil
}

func (m *memStore) ListByStatus(_ context.Context, statuses ...domain.Status) ([]domain.DomainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DomainRecord
	for _, rec := range m.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) mustGet(tenantID string) domain.DomainRecord {
	rec, _ := m.Get(context.Background(), tenantID)
	return rec
}

// barrierStore makes the first n Get calls wait for each other, so that
// concurrent operations all read the same revision before racing on CAS.
type barrierStore struct {
	*memStore
	wg sync.WaitGroup
}

func newBarrierStore(inner *memStore, n int) *barrierStore {
	b := &barrierStore{memStore: inner}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, tenantID string) (domain.DomainRecord, error) {
	rec, err := b.memStore.Get(ctx, tenantID)
	b.wg.Done()
	b.wg.Wait()
	return rec, err
}

// --- DNS ---

type fakeResolver struct {
	mu      sync.Mutex
	records map[string][]string
	err     error
	calls   []string
	block   chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{records: make(map[string][]string)}
}

func (f *fakeResolver) set(name string, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[name] = values
}

func (f *fakeResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	block, err := f.block, f.err
	values, ok := f.records[name]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrDNSNotFound
	}
	return values, nil
}

// --- Provider ---

type fakeProvider struct {
	mu       sync.Mutex
	next     int
	status   map[string]domain.HostnameStatus
	addErr   error
	pollErr  error
	removed  []string
	added    []string
	polls    int
	block    chan struct{}
	removeFn func(id string) error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{status: make(map[string]domain.HostnameStatus)}
}

func (f *fakeProvider) AddHostname(ctx context.Context, hostname string) (string, string, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", "", f.addErr
	}
	f.next++
	id := fmt.Sprintf("cf-%d", f.next)
	f.added = append(f.added, hostname)
	f.status[id] = domain.HostnameStatus{SSLState: "initializing"}
	return id, "initializing", nil
}

func (f *fakeProvider) GetHostnameStatus(_ context.Context, id string) (domain.HostnameStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return domain.HostnameStatus{}, f.pollErr
	}
	return f.status[id], nil
}

func (f *fakeProvider) RemoveHostname(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	if f.removeFn != nil {
		return f.removeFn(id)
	}
	return nil
}

func (f *fakeProvider) setStatus(id string, st domain.HostnameStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = st
}

// --- Publisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e domain.Event, _ domain.DomainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) published() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// --- Validator ---

// tableValidator applies domain.Transitions directly.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	for _, t := range domain.Transitions {
		if t.Event == event && t.Src == current {
			return t.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}
