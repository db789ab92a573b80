package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/neomorfeo/domainiq/internal/domain"
)

const (
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	// codeDuplicateHostname is returned when the hostname already exists in
	// the zone, typically because an earlier attempt's response was lost.
	codeDuplicateHostname = 1406
)

// Certificate states that will not progress without a new registration.
var terminalStates = map[string]bool{
	"validation_timed_out": true,
	"issuance_timed_out":   true,
	"deployment_timed_out": true,
	"expired":              true,
	"deleted":              true,
}

// Config configures the Cloudflare for SaaS provider.
type Config struct {
	APIToken string
	ZoneID   string
	BaseURL  string
	// ValidationMethod is the DCV method requested for new hostnames ("http" or "txt").
	ValidationMethod string
	// RequestsPerSecond caps calls to the API; Cloudflare enforces a global
	// per-token quota.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Compile-time check: Provider implements domain.HostingProvider.
var _ domain.HostingProvider = (*Provider)(nil)

// Provider registers tenant hostnames as Cloudflare for SaaS custom hostnames.
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a provider for the given zone.
func New(cfg Config) (*Provider, error) {
	if cfg.APIToken == "" {
		return nil, errors.New("cloudflare: API token is required")
	}
	if cfg.ZoneID == "" {
		return nil, errors.New("cloudflare: zone ID is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ValidationMethod == "" {
		cfg.ValidationMethod = "http"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

type cfResponse struct {
	Success bool            `json:"success"`
	Errors  []cfError       `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type customHostname struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	SSL      struct {
		Status           string `json:"status"`
		ValidationErrors []struct {
			Message string `json:"message"`
		} `json:"validation_errors"`
	} `json:"ssl"`
}

// apiError is a request Cloudflare answered but refused.
type apiError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *apiError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("cloudflare error [%d]: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("cloudflare request failed (HTTP %d)", e.StatusCode)
}

func (e *apiError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (p *Provider) AddHostname(ctx context.Context, hostname string) (string, string, error) {
	body := map[string]any{
		"hostname": hostname,
		"ssl": map[string]any{
			"method": p.cfg.ValidationMethod,
			"type":   "dv",
		},
	}

	var ch customHostname
	err := p.call(ctx, http.MethodPost, p.hostnamesPath(), body, &ch)

	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Code == codeDuplicateHostname {
		existing, findErr := p.findByHostname(ctx, hostname)
		if findErr != nil {
			return "", "", providerError("looking up existing custom hostname", findErr)
		}
		if existing == nil {
			return "", "", providerError("registering custom hostname", err)
		}
		return existing.ID, existing.SSL.Status, nil
	}
	if err != nil {
		return "", "", providerError("registering custom hostname", err)
	}
	return ch.ID, ch.SSL.Status, nil
}

func (p *Provider) GetHostnameStatus(ctx context.Context, providerID string) (domain.HostnameStatus, error) {
	var ch customHostname
	if err := p.call(ctx, http.MethodGet, p.hostnamesPath()+"/"+url.PathEscape(providerID), nil, &ch); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.HostnameStatus{
				SSLState:        "deleted",
				TerminalFailure: true,
				Reason:          "custom hostname no longer exists at the hosting provider",
			}, nil
		}
		return domain.HostnameStatus{}, providerError("fetching custom hostname", err)
	}
	return statusOf(ch), nil
}

func (p *Provider) RemoveHostname(ctx context.Context, providerID string) error {
	err := p.call(ctx, http.MethodDelete, p.hostnamesPath()+"/"+url.PathEscape(providerID), nil, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return providerError("removing custom hostname", err)
	}
	return nil
}

func statusOf(ch customHostname) domain.HostnameStatus {
	st := domain.HostnameStatus{SSLState: ch.SSL.Status}
	switch {
	case ch.SSL.Status == "active":
		st.Issued = true
	case terminalStates[ch.SSL.Status]:
		st.TerminalFailure = true
		st.Reason = "certificate " + strings.ReplaceAll(ch.SSL.Status, "_", " ")
		if len(ch.SSL.ValidationErrors) > 0 {
			st.Reason += ": " + ch.SSL.ValidationErrors[0].Message
		}
	}
	return st
}

func (p *Provider) findByHostname(ctx context.Context, hostname string) (*customHostname, error) {
	var list []customHostname
	if err := p.call(ctx, http.MethodGet, p.hostnamesPath()+"?hostname="+url.QueryEscape(hostname), nil, &list); err != nil {
		return nil, err
	}
	for i := range list {
		if strings.EqualFold(list[i].Hostname, hostname) {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (p *Provider) hostnamesPath() string {
	return "/zones/" + url.PathEscape(p.cfg.ZoneID) + "/custom_hostnames"
}

// call performs one API operation, retrying throttled and server-side
// failures until ctx expires, and decodes the result into out.
func (p *Provider) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     200 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         2 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, 3), ctx)

	var result *cfResponse
	operation := func() error {
		res, err := p.doRequest(ctx, method, path, payload)
		if err != nil {
			var apiErr *apiError
			if ctx.Err() != nil || (errors.As(err, &apiErr) && !apiErr.retryable()) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}

	if out == nil || len(result.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return fmt.Errorf("decoding cloudflare result: %w", err)
	}
	return nil
}

func (p *Provider) doRequest(ctx context.Context, method, path string, payload []byte) (*cfResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result cfResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &apiError{StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("decoding cloudflare response: %w", err)
	}

	if !result.Success || resp.StatusCode >= 400 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		if len(result.Errors) > 0 {
			apiErr.Code = result.Errors[0].Code
			apiErr.Message = result.Errors[0].Message
		}
		return nil, apiErr
	}

	return &result, nil
}

func providerError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := "hosting provider request failed while " + op
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg += ": " + apiErr.Message
	}
	return domain.NewError(domain.KindProviderError, msg, err)
}
