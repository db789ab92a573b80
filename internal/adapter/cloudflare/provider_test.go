package cloudflare_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/neomorfeo/domainiq/internal/adapter/cloudflare"
	"github.com/neomorfeo/domainiq/internal/domain"
)

// fakeAPI is a minimal stand-in for the custom hostnames endpoints.
type fakeAPI struct {
	mu        sync.Mutex
	hostnames map[string]map[string]any // id -> custom hostname object
	next      int
	failNext  int // respond 503 to this many requests first
	requests  []string
	auth      []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *cloudflare.Provider) {
	t.Helper()
	api := &fakeAPI{hostnames: make(map[string]map[string]any)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := cloudflare.New(cloudflare.Config{
		APIToken:          "secret",
		ZoneID:            "zone-1",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return api, p
}

func (f *fakeAPI) setSSL(id, status string, validationErrors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []map[string]string
	for _, m := range validationErrors {
		errs = append(errs, map[string]string{"message": m})
	}
	f.hostnames[id]["ssl"] = map[string]any{"status": status, "validation_errors": errs}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if f.failNext > 0 {
		f.failNext--
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"errors":  []map[string]any{{"code": 10000, "message": "service unavailable"}},
		})
		return
	}

	const base = "/zones/zone-1/custom_hostnames"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == base:
		var body struct {
			Hostname string `json:"hostname"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, ch := range f.hostnames {
			if ch["hostname"] == body.Hostname {
				writeJSON(w, http.StatusConflict, map[string]any{
					"success": false,
					"errors":  []map[string]any{{"code": 1406, "message": "Duplicate custom hostname found."}},
				})
				return
			}
		}
		f.next++
		id := "ch-" + string(rune('0'+f.next))
		ch := map[string]any{
			"id":       id,
			"hostname": body.Hostname,
			"ssl":      map[string]any{"status": "initializing"},
		}
		f.hostnames[id] = ch
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "result": ch})

	case r.Method == http.MethodGet && r.URL.Path == base:
		var out []map[string]any
		for _, ch := range f.hostnames {
			if ch["hostname"] == r.URL.Query().Get("hostname") {
				out = append(out, ch)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": out})

	case strings.HasPrefix(r.URL.Path, base+"/"):
		id := strings.TrimPrefix(r.URL.Path, base+"/")
		ch, ok := f.hostnames[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": 1436, "message": "Custom hostname not found."}},
			})
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.hostnames, id)
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": map[string]any{"id": id}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": ch})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := cloudflare.New(cloudflare.Config{ZoneID: "z"}); err == nil {
		t.Error("expected error without API token")
	}
	if _, err := cloudflare.New(cloudflare.Config{APIToken: "t"}); err == nil {
		t.Error("expected error without zone ID")
	}
}

func TestAddHostname(t *testing.T) {
	api, p := newFakeAPI(t)

	id, state, err := p.AddHostname(context.Background(), "shop.acme.com")
	if err != nil {
		t.Fatalf("AddHostname failed: %v", err)
	}
	if id == "" {
		t.Error("expected a provider id")
	}
	if state != "initializing" {
		t.Errorf("state = %q, want initializing", state)
	}
	if api.auth[0] != "Bearer secret" {
		t.Errorf("Authorization = %q", api.auth[0])
	}
}

func TestAddHostname_DuplicateReturnsExisting(t *testing.T) {
	_, p := newFakeAPI(t)
	ctx := context.Background()

	first, _, err := p.AddHostname(ctx, "shop.acme.com")
	if err != nil {
		t.Fatalf("AddHostname failed: %v", err)
	}
	second, _, err := p.AddHostname(ctx, "shop.acme.com")
	if err != nil {
		t.Fatalf("second AddHostname failed: %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %q vs %q", first, second)
	}
}

func TestAddHostname_RetriesServerErrors(t *testing.T) {
	api, p := newFakeAPI(t)
	api.failNext = 2

	if _, _, err := p.AddHostname(context.Background(), "shop.acme.com"); err != nil {
		t.Fatalf("AddHostname failed: %v", err)
	}
	if len(api.requests) != 3 {
		t.Errorf("made %d requests, want 3", len(api.requests))
	}
}

func TestAddHostname_GivesUpAfterRetries(t *testing.T) {
	api, p := newFakeAPI(t)
	api.failNext = 100

	_, _, err := p.AddHostname(context.Background(), "shop.acme.com")
	if domain.KindOf(err) != domain.KindProviderError {
		t.Fatalf("kind = %q, want provider_error (err %v)", domain.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "service unavailable") {
		t.Errorf("message %q should carry the provider reason", err.Error())
	}
}

func TestGetHostnameStatus(t *testing.T) {
	api, p := newFakeAPI(t)
	ctx := context.Background()

	id, _, err := p.AddHostname(ctx, "shop.acme.com")
	if err != nil {
		t.Fatalf("AddHostname failed: %v", err)
	}

	tests := []struct {
		ssl      string
		errs     []string
		issued   bool
		terminal bool
		reason   string
	}{
		{ssl: "pending_validation"},
		{ssl: "pending_deployment"},
		{ssl: "active", issued: true},
		{ssl: "validation_timed_out", errs: []string{"CAA record blocks issuance"}, terminal: true, reason: "CAA record blocks issuance"},
		{ssl: "expired", terminal: true, reason: "certificate expired"},
	}

	for _, tt := range tests {
		t.Run(tt.ssl, func(t *testing.T) {
			api.setSSL(id, tt.ssl, tt.errs...)

			st, err := p.GetHostnameStatus(ctx, id)
			if err != nil {
				t.Fatalf("GetHostnameStatus failed: %v", err)
			}
			if st.SSLState != tt.ssl {
				t.Errorf("SSLState = %q, want %q", st.SSLState, tt.ssl)
			}
			if st.Issued != tt.issued {
				t.Errorf("Issued = %v, want %v", st.Issued, tt.issued)
			}
			if st.TerminalFailure != tt.terminal {
				t.Errorf("TerminalFailure = %v, want %v", st.TerminalFailure, tt.terminal)
			}
			if !strings.Contains(st.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", st.Reason, tt.reason)
			}
		})
	}
}

func TestGetHostnameStatus_UnknownIDIsTerminal(t *testing.T) {
	_, p := newFakeAPI(t)

	st, err := p.GetHostnameStatus(context.Background(), "gone")
	if err != nil {
		t.Fatalf("GetHostnameStatus failed: %v", err)
	}
	if !st.TerminalFailure {
		t.Error("a vanished hostname should be a terminal failure")
	}
}

func TestRemoveHostname(t *testing.T) {
	api, p := newFakeAPI(t)
	ctx := context.Background()

	id, _, err := p.AddHostname(ctx, "shop.acme.com")
	if err != nil {
		t.Fatalf("AddHostname failed: %v", err)
	}
	if err := p.RemoveHostname(ctx, id); err != nil {
		t.Fatalf("RemoveHostname failed: %v", err)
	}
	if len(api.hostnames) != 0 {
		t.Errorf("hostname still registered")
	}

	// Removing an unknown id is a success.
	if err := p.RemoveHostname(ctx, id); err != nil {
		t.Errorf("second RemoveHostname failed: %v", err)
	}
}

func TestRejectedRequestIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"errors":  []map[string]any{{"code": 1409, "message": "hostname is not allowed"}},
		})
	}))
	t.Cleanup(srv.Close)

	p, err := cloudflare.New(cloudflare.Config{APIToken: "t", ZoneID: "z", BaseURL: srv.URL, RequestsPerSecond: 1000})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, _, err = p.AddHostname(context.Background(), "bad.example")
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindProviderError {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1", calls)
	}
}

func TestCallerCancellationIsNotClassified(t *testing.T) {
	_, p := newFakeAPI(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.AddHostname(ctx, "shop.acme.com")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
