package auth

import (
	"errors"
	"fmt"
)

// ErrRefreshImpossible is returned when a refresh is requested for a state
// that has no refresh token. It is not retryable.
var ErrRefreshImpossible = errors.New("refresh impossible: no refresh token available")

// DiscoveryError reports that the provider metadata could not be fetched or
// parsed.
type DiscoveryError struct {
	Issuer string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for issuer %q: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// AuthorizationError reports a failed authorization leg: the user denied or
// cancelled, the redirect carried a protocol error, or the state did not match.
type AuthorizationError struct {
	Code        string
	Description string
	Err         error
}

func (e *AuthorizationError) Error() string {
	msg := "authorization failed"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Cancelled reports whether the user denied or abandoned the request.
func (e *AuthorizationError) Cancelled() bool {
	return e.Code == "access_denied" || e.Code == "login_required" || e.Code == "cancelled"
}

// TokenExchangeError reports that the token endpoint rejected a code or
// refresh exchange.
type TokenExchangeError struct {
	Grant       string
	Code        string
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("%s exchange failed", e.Grant)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Code == "" && e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// Record converts the error into the form stored inside AuthState.
func (e *TokenExchangeError) Record() *ErrorRecord {
	desc := e.Description
	if desc == "" && e.Err != nil {
		desc = e.Err.Error()
	}
	return &ErrorRecord{Type: "token_exchange", Code: e.Code, Description: desc}
}

// TokenEndpointError reports that a code or refresh exchange got no verdict
// from the provider: the token endpoint was unreachable, timed out or failed
// with a server error. The grant may still succeed later, so the session it
// belongs to must be kept.
type TokenEndpointError struct {
	Grant      string
	StatusCode int
	Err        error
}

func (e *TokenEndpointError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s exchange did not complete: token endpoint returned status %d", e.Grant, e.StatusCode)
	}
	return fmt.Sprintf("%s exchange did not complete: %v", e.Grant, e.Err)
}

func (e *TokenEndpointError) Unwrap() error { return e.Err }

// Record converts the error into the form stored inside AuthState.
func (e *TokenEndpointError) Record() *ErrorRecord {
	return &ErrorRecord{Type: "token_endpoint", Code: "unavailable", Description: e.Error()}
}

// StorageError reports a key store, blob store, sealing or decoding failure.
// Token store callers never see it; it exists for logging and tests.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("secure storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TicketRequestError reports that a bridge ticket could not be minted.
type TicketRequestError struct {
	StatusCode int
	Err        error
}

func (e *TicketRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bridge ticket request failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("bridge ticket request failed: %v", e.Err)
}

func (e *TicketRequestError) Unwrap() error { return e.Err }
