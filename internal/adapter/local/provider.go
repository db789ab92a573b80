package local

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/neomorfeo/domainiq/internal/domain"
)

// Compile-time check: Provider implements domain.HostingProvider.
var _ domain.HostingProvider = (*Provider)(nil)

type hostname struct {
	name  string
	polls int
}

// Provider is an in-memory hosting provider for development. Every
// registered hostname reports pending_validation until it has been polled
// IssueAfter times, then active.
type Provider struct {
	IssueAfter int

	mu        sync.Mutex
	hostnames map[string]*hostname
}

// New creates a provider that issues certificates after issueAfter polls.
func New(issueAfter int) *Provider {
	return &Provider{
		IssueAfter: issueAfter,
		hostnames:  make(map[string]*hostname),
	}
}

func (p *Provider) AddHostname(ctx context.Context, name string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, h := range p.hostnames {
		if h.name == name {
			return id, p.state(h), nil
		}
	}
	id := uuid.NewString()
	p.hostnames[id] = &hostname{name: name}
	return id, "pending_validation", nil
}

func (p *Provider) GetHostnameStatus(ctx context.Context, providerID string) (domain.HostnameStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.HostnameStatus{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.hostnames[providerID]
	if !ok {
		return domain.HostnameStatus{
			SSLState:        "deleted",
			TerminalFailure: true,
			Reason:          "custom hostname no longer exists at the hosting provider",
		}, nil
	}
	h.polls++
	st := domain.HostnameStatus{SSLState: p.state(h)}
	st.Issued = st.SSLState == "active"
	return st, nil
}

func (p *Provider) RemoveHostname(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.hostnames, providerID)
	return nil
}

func (p *Provider) state(h *hostname) string {
	if h.polls >= p.IssueAfter {
		return "active"
	}
	return "pending_validation"
}
