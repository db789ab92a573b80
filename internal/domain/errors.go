package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the lifecycle can report to a caller.
type ErrorKind string

const (
	KindInvalidDomain ErrorKind = "invalid_domain"
	KindInvalidState  ErrorKind = "invalid_state"
	KindConflict      ErrorKind = "conflict"
	KindDNSNotFound   ErrorKind = "dns_not_found"
	KindDNSMismatch   ErrorKind = "dns_mismatch"
	KindDNSTimeout    ErrorKind = "dns_timeout"
	KindProviderError ErrorKind = "provider_error"
	KindNotConfigured ErrorKind = "not_configured"
)

// Error is a classified failure with a message fit for display to the tenant.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors, one per kind.
var (
	ErrInvalidDomain = &Error{Kind: KindInvalidDomain, Message: "invalid domain name"}
	ErrInvalidState  = &Error{Kind: KindInvalidState, Message: "operation not allowed in the current state"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "another change to this domain is in progress, try again shortly"}
	ErrDNSNotFound   = &Error{Kind: KindDNSNotFound, Message: "DNS TXT record not found. Please allow up to 10 minutes for propagation"}
	ErrDNSMismatch   = &Error{Kind: KindDNSMismatch, Message: "DNS TXT record found but its value does not match the verification token"}
	ErrDNSTimeout    = &Error{Kind: KindDNSTimeout, Message: "DNS lookup timed out, please try again"}
	ErrProvider      = &Error{Kind: KindProviderError, Message: "hosting provider request failed"}
	ErrNotConfigured = &Error{Kind: KindNotConfigured, Message: "no custom domain is configured"}
)

// NewError builds a classified error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// Is makes a TransitionError satisfy errors.Is(err, ErrInvalidState).
func (e *TransitionError) Is(target error) bool {
	var t *Error
	return errors.As(target, &t) && t.Kind == KindInvalidState
}

// KindOf returns the kind carried by err, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var tr *TransitionError
	if errors.As(err, &tr) {
		return KindInvalidState
	}
	return ""
}
