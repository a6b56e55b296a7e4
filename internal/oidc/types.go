package oidc

import (
	"context"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"

	"launchpad/pkg/auth"
)

const (
	// DefaultHTTPTimeout bounds every call to the provider.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultProviderTTL is how long discovered metadata is reused by the
	// flow operations. Discover itself always fetches.
	DefaultProviderTTL = 30 * time.Minute

	// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
	DefaultTokenLifetime = 5 * time.Minute

	// CallbackTimeout is how long to wait for the browser redirect.
	CallbackTimeout = 10 * time.Minute
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{gooidc.ScopeOpenID, "profile", "email", gooidc.ScopeOfflineAccess}

// Config is the fixed client registration.
type Config struct {
	ClientID              string
	RedirectURI           string
	PostLogoutRedirectURI string
	Scopes                []string

	// HTTPClient is used for discovery, token and JWKS requests. It must not
	// be routed through the request gate.
	HTTPClient  *http.Client
	ProviderTTL time.Duration
}

// IssuerSource yields the issuer URL to discover.
type IssuerSource interface {
	Issuer(ctx context.Context) (string, error)
}

// StaticIssuer is an IssuerSource for a configured issuer URL.
type StaticIssuer string

func (s StaticIssuer) Issuer(context.Context) (string, error) {
	return string(s), nil
}

// StateReplacer receives refreshed sessions.
type StateReplacer interface {
	Replace(state auth.AuthState) auth.AuthState
}

// ProviderConfiguration is the discovered provider metadata.
type ProviderConfiguration struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	EndSessionEndpoint    string

	provider *gooidc.Provider
}

// AuthorizationRequest is an authorization request ready to be opened in a
// browser. It holds the PKCE verifier and must not leave the process.
type AuthorizationRequest struct {
	URL          string
	State        string
	Nonce        string
	CodeVerifier string
	RedirectURI  string
	CreatedAt    time.Time

	provider *ProviderConfiguration
}

// RedirectResult is the payload of the redirect back from the provider.
type RedirectResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError returns true if the provider reported an error.
func (r RedirectResult) IsError() bool {
	return r.Error != ""
}

// RefreshResult is the outcome of a refresh attempt. On failure State is the
// unchanged input.
type RefreshResult struct {
	Success bool
	State   auth.AuthState
	Err     error
}

// LogoutRequest is an RP-initiated logout request ready to be opened in a
// browser.
type LogoutRequest struct {
	URL string
}
