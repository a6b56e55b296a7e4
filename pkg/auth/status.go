package auth

import "time"

// StatusResponse is the structured session summary printed by
// `launchpad auth status --output json`.
type StatusResponse struct {
	Phase         string       `json:"phase"`
	Authenticated bool         `json:"authenticated"`
	Valid         bool         `json:"valid"`
	Subject       string       `json:"subject,omitempty"`
	Email         string       `json:"email,omitempty"`
	Issuer        string       `json:"issuer,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	ExpiresIn     string       `json:"expires_in,omitempty"`
	CanRefresh    bool         `json:"can_refresh"`
	LastError     *ErrorRecord `json:"last_error,omitempty"`
}

// NewStatusResponse summarizes s without exposing any token value.
func NewStatusResponse(s AuthState, phase string, now time.Time) StatusResponse {
	resp := StatusResponse{
		Phase:         phase,
		Authenticated: s.Authorized,
		Valid:         s.Valid(now, DefaultRefreshSkew),
		CanRefresh:    s.CanRefresh(),
		LastError:     s.LastError,
	}
	if !s.AccessTokenExpiry.IsZero() {
		exp := s.AccessTokenExpiry
		resp.ExpiresAt = &exp
		resp.ExpiresIn = s.ExpiresIn(now).Round(time.Second).String()
	}
	return resp
}
