package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/domainiq/internal/app"
	"github.com/neomorfeo/domainiq/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05Z"

// DomainResponse is the API representation of a tenant's custom domain.
type DomainResponse struct {
	TenantID          string `json:"tenant_id" doc:"Owning tenant"`
	Hostname          string `json:"hostname" doc:"Custom hostname (lowercase FQDN)"`
	Kind              string `json:"kind" doc:"apex or subdomain" enum:"apex,subdomain"`
	Status            string `json:"status" doc:"Lifecycle state"`
	VerificationToken string `json:"verification_token" doc:"Value the TXT ownership record must carry"`
	VerifiedAt        string `json:"verified_at,omitempty" doc:"When ownership was proven (ISO 8601)"`
	SSLState          string `json:"ssl_state,omitempty" doc:"Certificate state reported by the hosting provider"`
	FailureKind       string `json:"failure_kind,omitempty" doc:"Error kind of the last failure"`
	LastError         string `json:"last_error,omitempty" doc:"Reason for the last failure"`
	CreatedAt         string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt         string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toDomainResponse(rec domain.DomainRecord) DomainResponse {
	resp := DomainResponse{
		TenantID:          rec.TenantID,
		Hostname:          rec.Hostname,
		Kind:              domain.Classify(rec.Hostname).String(),
		Status:            string(rec.Status),
		VerificationToken: rec.VerificationToken,
		SSLState:          rec.SSLState,
		FailureKind:       string(rec.FailureKind),
		LastError:         rec.LastError,
		CreatedAt:         rec.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:         rec.UpdatedAt.UTC().Format(timeLayout),
	}
	if rec.VerifiedAt != nil {
		resp.VerifiedAt = rec.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// DNSRecordResponse is one record the tenant must create at their DNS host.
type DNSRecordResponse struct {
	Type  string `json:"type" enum:"TXT,A,CNAME"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// --- Inputs / outputs ---

type TenantInput struct {
	TenantID string `path:"tenant" minLength:"1" maxLength:"128" doc:"Tenant ID"`
}

type SetDomainInput struct {
	TenantID string `path:"tenant" minLength:"1" maxLength:"128" doc:"Tenant ID"`
	Body     struct {
		Hostname string `json:"hostname" minLength:"1" maxLength:"254" doc:"Custom hostname, e.g. shop.example.com"`
	}
}

type DomainOutput struct {
	Body DomainResponse
}

type DNSRecordsOutput struct {
	Body []DNSRecordResponse
}

// Register adds all custom domain routes to the Huma API.
func Register(api huma.API, svc *app.DomainService) {
	const path = "/api/v1/tenants/{tenant}/domain"
	tags := []string{"Domains"}

	huma.Register(api, huma.Operation{
		OperationID: "get-domain",
		Method:      http.MethodGet,
		Path:        path,
		Summary:     "Get the tenant's custom domain",
		Tags:        tags,
	}, func(ctx context.Context, input *TenantInput) (*DomainOutput, error) {
		return domainResult(svc.Get(ctx, input.TenantID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-domain",
		Method:      http.MethodPut,
		Path:        path,
		Summary:     "Set or replace the tenant's custom domain",
		Description: "Issues a new verification token and restarts the lifecycle at pending.",
		Tags:        tags,
	}, func(ctx context.Context, input *SetDomainInput) (*DomainOutput, error) {
		return domainResult(svc.SetDomain(ctx, input.TenantID, input.Body.Hostname))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-domain",
		Method:        http.MethodDelete,
		Path:          path,
		Summary:       "Remove the tenant's custom domain",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *TenantInput) (*struct{}, error) {
		if err := svc.RemoveDomain(ctx, input.TenantID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-domain",
		Method:      http.MethodPost,
		Path:        path + "/verify",
		Summary:     "Check the TXT ownership record",
		Tags:        tags,
	}, func(ctx context.Context, input *TenantInput) (*DomainOutput, error) {
		return domainResult(svc.VerifyDomain(ctx, input.TenantID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "provision-domain",
		Method:      http.MethodPost,
		Path:        path + "/provision",
		Summary:     "Register the hostname with the hosting provider",
		Tags:        tags,
	}, func(ctx context.Context, input *TenantInput) (*DomainOutput, error) {
		return domainResult(svc.ProvisionSSL(ctx, input.TenantID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-domain",
		Method:      http.MethodPost,
		Path:        path + "/check",
		Summary:     "Poll certificate issuance",
		Tags:        tags,
	}, func(ctx context.Context, input *TenantInput) (*DomainOutput, error) {
		return domainResult(svc.CheckStatus(ctx, input.TenantID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-domain-dns-records",
		Method:      http.MethodGet,
		Path:        path + "/dns-records",
		Summary:     "List the DNS records the tenant must create",
		Tags:        tags,
	}, func(ctx context.Context, input *TenantInput) (*DNSRecordsOutput, error) {
		records, err := svc.DNSRecords(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := make([]DNSRecordResponse, len(records))
		for i, r := range records {
			out[i] = DNSRecordResponse{Type: r.Type, Name: r.Name, Value: r.Value}
		}
		return &DNSRecordsOutput{Body: out}, nil
	})
}

func domainResult(rec domain.DomainRecord, err error) (*DomainOutput, error) {
	if err != nil {
		return nil, toHumaError(err)
	}
	return &DomainOutput{Body: toDomainResponse(rec)}, nil
}

// toHumaError translates domain errors to Huma HTTP errors. The error kind
// travels as an error detail so clients can branch on it.
func toHumaError(err error) error {
	kind := domain.KindOf(err)
	if kind == "" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return huma.Error503ServiceUnavailable("request cancelled before completion")
		}
		return huma.Error500InternalServerError("internal server error")
	}

	detail := &huma.ErrorDetail{Location: "kind", Value: string(kind), Message: err.Error()}

	switch kind {
	case domain.KindInvalidDomain:
		return huma.Error422UnprocessableEntity(err.Error(), detail)
	case domain.KindInvalidState, domain.KindConflict:
		return huma.Error409Conflict(err.Error(), detail)
	case domain.KindNotConfigured:
		return huma.Error404NotFound(err.Error(), detail)
	case domain.KindDNSNotFound, domain.KindDNSMismatch, domain.KindDNSTimeout, domain.KindProviderError:
		return huma.NewError(http.StatusFailedDependency, err.Error(), detail)
	}
	return huma.Error500InternalServerError("internal server error")
}
