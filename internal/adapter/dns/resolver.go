package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/neomorfeo/domainiq/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Compile-time check: Resolver implements domain.TXTResolver.
var _ domain.TXTResolver = (*Resolver)(nil)

// Resolver answers TXT lookups by querying recursive nameservers directly,
// bypassing the host's stub resolver and its negative cache.
type Resolver struct {
	servers []string
	timeout time.Duration
}

// New creates a resolver querying servers ("host:port") in order. A server is
// skipped only when it times out; any answer it gives is final. timeout caps
// each server; under a caller deadline every server left to try gets an equal
// share of the remaining time.
func New(servers []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		servers: servers,
		timeout: timeout,
	}
}

// ResolveTXT returns every TXT value published at name, each RR's strings
// joined into one value.
func (r *Resolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	if len(r.servers) == 0 {
		return nil, domain.NewError(domain.KindProviderError, "no DNS nameservers configured", nil)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	for i, server := range r.servers {
		resp, err := r.exchange(ctx, m, server, r.serverTimeout(ctx, len(r.servers)-i))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isTimeout(err) {
				slog.WarnContext(ctx, "nameserver timed out", "server", server, "name", name)
				continue
			}
			return nil, domain.NewError(domain.KindProviderError, "DNS lookup failed", err)
		}
		return answer(resp)
	}

	return nil, domain.ErrDNSTimeout
}

// serverTimeout is the budget of the next server when left servers remain.
func (r *Resolver) serverTimeout(ctx context.Context, left int) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return r.timeout
	}
	return min(r.timeout, time.Until(deadline)/time.Duration(left))
}

func (r *Resolver) exchange(ctx context.Context, m *dns.Msg, server string, timeout time.Duration) (*dns.Msg, error) {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	udp := &dns.Client{Net: "udp", Timeout: timeout}
	resp, _, err := udp.ExchangeContext(qctx, m, server)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: timeout}
		resp, _, err = tcp.ExchangeContext(qctx, m, server)
	}
	return resp, err
}

func answer(resp *dns.Msg) ([]string, error) {
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, domain.ErrDNSNotFound
	default:
		return nil, domain.NewError(domain.KindProviderError,
			fmt.Sprintf("DNS server answered %s", dns.RcodeToString[resp.Rcode]), nil)
	}

	var values []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	if len(values) == 0 {
		return nil, domain.ErrDNSNotFound
	}
	return values, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
