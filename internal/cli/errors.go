package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"launchpad/internal/client"
	"launchpad/internal/gate"
	"launchpad/pkg/auth"
)

// ConnectionErrorType categorizes the type of connection error.
type ConnectionErrorType int

const (
	// ConnectionErrorUnknown indicates an unclassified connection error.
	ConnectionErrorUnknown ConnectionErrorType = iota
	// ConnectionErrorTLS indicates a TLS/certificate verification error.
	ConnectionErrorTLS
	// ConnectionErrorNetwork indicates a refused or unreachable connection.
	ConnectionErrorNetwork
	// ConnectionErrorTimeout indicates a connection timeout.
	ConnectionErrorTimeout
	// ConnectionErrorDNS indicates a DNS resolution failure.
	ConnectionErrorDNS
)

// String returns a human-readable name for the connection error type.
func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError indicates a connection failure to an endpoint.
type ConnectionError struct {
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s reaching %s: %v", e.Type, e.Endpoint, e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Reason
}

// ClassifyConnectionError categorizes a transport error. It returns nil when
// err does not look like a connection problem.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}

	var (
		certErr *x509.CertificateInvalidError
		hostErr *x509.HostnameError
		caErr   *x509.UnknownAuthorityError
		dnsErr  *net.DNSError
		urlErr  *url.Error
		opErr   *net.OpError
	)
	switch {
	case errors.As(err, &certErr), errors.As(err, &hostErr), errors.As(err, &caErr):
		return &ConnectionError{Endpoint: endpoint, Type: ConnectionErrorTLS, Reason: err}
	case errors.As(err, &dnsErr):
		return &ConnectionError{Endpoint: endpoint, Type: ConnectionErrorDNS, Reason: err}
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return &ConnectionError{Endpoint: endpoint, Type: ConnectionErrorTimeout, Reason: err}
	case errors.As(err, &opErr):
		return &ConnectionError{Endpoint: endpoint, Type: ConnectionErrorNetwork, Reason: err}
	}

	msg := err.Error()
	for _, keyword := range []string{"connection refused", "connection reset", "no route to host", "network is unreachable"} {
		if strings.Contains(msg, keyword) {
			return &ConnectionError{Endpoint: endpoint, Type: ConnectionErrorNetwork, Reason: err}
		}
	}
	return nil
}

// AuthRequiredError indicates there is no session.
type AuthRequiredError struct {
	Endpoint string
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authentication required for %s

To authenticate, run:
  launchpad auth login`, e.Endpoint)
}

// AuthExpiredError indicates the session can no longer be refreshed.
type AuthExpiredError struct {
	Endpoint string
	Reason   error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`Session expired for %s: %v

To re-authenticate, run:
  launchpad auth login`, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthExpiredError) Unwrap() error {
	return e.Reason
}

// AuthFailedError indicates the login flow failed.
type AuthFailedError struct {
	Endpoint string
	Reason   error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed for %s: %v

To retry authentication, run:
  launchpad auth login`, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// BridgeError indicates an isolated application could not be opened.
type BridgeError struct {
	Target string
	Reason error
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("could not open %s: %v", e.Target, e.Reason)
}

// Unwrap returns the underlying error.
func (e *BridgeError) Unwrap() error {
	return e.Reason
}

// Classify maps errors from the auth stack onto the CLI error types above.
// Errors that need no mapping are returned unchanged.
func Classify(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	var (
		authzErr  *auth.AuthorizationError
		texErr    *auth.TokenExchangeError
		discErr   *auth.DiscoveryError
		ticketErr *auth.TicketRequestError
		statusErr *client.StatusError
	)
	switch {
	case errors.Is(err, gate.ErrNotAuthenticated):
		return &AuthRequiredError{Endpoint: endpoint}
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized:
		return &AuthRequiredError{Endpoint: endpoint}
	case errors.Is(err, auth.ErrRefreshImpossible):
		return &AuthExpiredError{Endpoint: endpoint, Reason: err}
	case errors.As(err, &texErr) && texErr.Grant == "refresh_token":
		return &AuthExpiredError{Endpoint: endpoint, Reason: err}
	case errors.As(err, &authzErr), errors.As(err, &texErr), errors.As(err, &discErr):
		return &AuthFailedError{Endpoint: endpoint, Reason: err}
	case errors.As(err, &ticketErr):
		return &BridgeError{Target: endpoint, Reason: err}
	}

	if ce := ClassifyConnectionError(err, endpoint); ce != nil {
		return ce
	}
	return err
}
