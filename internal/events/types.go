package events

import "time"

// ExpiryReason explains why a session was declared expired.
type ExpiryReason string

const (
	// ReasonRejected means the backend answered 401 to a request that carried
	// a bearer token.
	ReasonRejected ExpiryReason = "TokenRejected"

	// ReasonRefreshFailed means the access token was stale and the refresh
	// grant failed, so the request went out unauthenticated and was refused.
	ReasonRefreshFailed ExpiryReason = "RefreshFailed"

	// ReasonRefreshImpossible means the token was stale and there was no
	// refresh token to renew it with.
	ReasonRefreshImpossible ExpiryReason = "RefreshImpossible"
)

// SessionExpired is published when the session is unrecoverable.
type SessionExpired struct {
	Reason     ExpiryReason
	StatusCode int
	// Challenge is the error code from WWW-Authenticate, e.g. "invalid_token".
	Challenge string
	// Detail is the server's error_description for a rejected token.
	Detail string
	URL    string
	At     time.Time
}
