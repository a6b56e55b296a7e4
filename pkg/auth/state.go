package auth

import (
	"fmt"
	"time"

	"launchpad/pkg/oauth"
)

// DefaultRefreshSkew is how long before the recorded expiry an access token is
// already treated as stale.
const DefaultRefreshSkew = 60 * time.Second

// ErrorRecord is the persisted form of the last authorization or token
// exchange failure.
type ErrorRecord struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// AuthState is the complete OAuth session as seen by the client.
//
// If Authorized is true, AccessToken and AccessTokenExpiry are set. RefreshToken
// and IDToken are optional and depend on the provider.
type AuthState struct {
	Authorized        bool         `json:"authorized"`
	AccessToken       string       `json:"access_token,omitempty"`
	AccessTokenExpiry time.Time    `json:"access_token_expiry,omitempty"`
	RefreshToken      string       `json:"refresh_token,omitempty"`
	IDToken           string       `json:"id_token,omitempty"`
	LastError         *ErrorRecord `json:"last_error,omitempty"`
}

// Empty returns the logged-out state.
func Empty() AuthState {
	return AuthState{}
}

// NeedsRefresh reports whether the access token is missing, has no known
// expiry, or expires within skew of now.
func (s AuthState) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if s.AccessToken == "" || s.AccessTokenExpiry.IsZero() {
		return true
	}
	return !now.Add(skew).Before(s.AccessTokenExpiry)
}

// CanRefresh reports whether a refresh grant is possible.
func (s AuthState) CanRefresh() bool {
	return s.RefreshToken != ""
}

// Valid reports whether the state is authorized and its access token is usable
// at now without a refresh.
func (s AuthState) Valid(now time.Time, skew time.Duration) bool {
	return s.Authorized && !s.NeedsRefresh(now, skew)
}

// ExpiresIn returns the remaining lifetime of the access token, never negative.
func (s AuthState) ExpiresIn(now time.Time) time.Duration {
	if s.AccessTokenExpiry.IsZero() {
		return 0
	}
	d := s.AccessTokenExpiry.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// WithError returns a copy of s that is no longer authorized and carries rec.
func (s AuthState) WithError(rec *ErrorRecord) AuthState {
	s.Authorized = false
	s.LastError = rec
	return s
}

// String renders s for logs. Token values are redacted.
func (s AuthState) String() string {
	expiry := "none"
	if !s.AccessTokenExpiry.IsZero() {
		expiry = s.AccessTokenExpiry.UTC().Format(time.RFC3339)
	}
	lastError := "none"
	if s.LastError != nil {
		lastError = s.LastError.Type
		if s.LastError.Code != "" {
			lastError += "/" + s.LastError.Code
		}
	}
	return fmt.Sprintf("{Authorized:%t AccessToken:%s Expiry:%s RefreshToken:%s IDToken:%s LastError:%s}",
		s.Authorized, redact(s.AccessToken), expiry, redact(s.RefreshToken), redact(s.IDToken), lastError)
}

func (s AuthState) GoString() string {
	return "auth.AuthState" + s.String()
}

func redact(value string) string {
	if value == "" {
		return `""`
	}
	t := oauth.NewRedactedToken(value)
	return t.String() + t.Fingerprint()
}
