package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state AuthState
		want  bool
	}{
		{"no token", AuthState{}, true},
		{"no expiry", AuthState{AccessToken: "a"}, true},
		{"expired", AuthState{AccessToken: "a", AccessTokenExpiry: now.Add(-time.Minute)}, true},
		{"inside skew", AuthState{AccessToken: "a", AccessTokenExpiry: now.Add(30 * time.Second)}, true},
		{"exactly at skew", AuthState{AccessToken: "a", AccessTokenExpiry: now.Add(DefaultRefreshSkew)}, true},
		{"fresh", AuthState{AccessToken: "a", AccessTokenExpiry: now.Add(10 * time.Minute)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.NeedsRefresh(now, DefaultRefreshSkew))
		})
	}
}

func TestAuthStateJSONRoundTrip(t *testing.T) {
	s := AuthState{
		Authorized:        true,
		AccessToken:       "access",
		AccessTokenExpiry: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RefreshToken:      "refresh",
		IDToken:           "id",
		LastError:         &ErrorRecord{Type: "token_exchange", Code: "invalid_grant"},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got AuthState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s, got)
}

func TestWithErrorDoesNotMutateOriginal(t *testing.T) {
	s := AuthState{Authorized: true, AccessToken: "a"}
	e := s.WithError(&ErrorRecord{Type: "x"})

	assert.True(t, s.Authorized)
	assert.Nil(t, s.LastError)
	assert.False(t, e.Authorized)
	assert.Equal(t, "x", e.LastError.Type)
}

func TestErrorTaxonomyUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var disc *DiscoveryError
	assert.True(t, errors.As(fmt.Errorf("login: %w", &DiscoveryError{Issuer: "i", Err: cause}), &disc))
	assert.ErrorIs(t, disc, cause)

	tex := &TokenExchangeError{Grant: "authorization_code", Code: "invalid_grant", Description: "expired code"}
	assert.Equal(t, &ErrorRecord{Type: "token_exchange", Code: "invalid_grant", Description: "expired code"}, tex.Record())
	assert.Contains(t, tex.Error(), "invalid_grant")

	assert.True(t, (&AuthorizationError{Code: "access_denied"}).Cancelled())
	assert.False(t, (&AuthorizationError{Code: "invalid_request"}).Cancelled())

	assert.ErrorIs(t, fmt.Errorf("gate: %w", ErrRefreshImpossible), ErrRefreshImpossible)

	tre := &TicketRequestError{StatusCode: 500, Err: cause}
	assert.ErrorIs(t, tre, cause)
	assert.Contains(t, tre.Error(), "500")
}

func TestNewStatusResponse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := AuthState{Authorized: true, AccessToken: "secret", AccessTokenExpiry: now.Add(90 * time.Second), RefreshToken: "r"}

	resp := NewStatusResponse(s, "Authenticated", now)
	assert.True(t, resp.Authenticated)
	assert.True(t, resp.CanRefresh)
	assert.True(t, resp.Valid)
	assert.Equal(t, "1m30s", resp.ExpiresIn)

	assert.False(t, NewStatusResponse(s, "Authenticated", now.Add(time.Minute)).Valid, "inside the refresh skew")

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}

func TestAuthStateStringRedactsTokens(t *testing.T) {
	s := AuthState{
		Authorized:        true,
		AccessToken:       "eyJhbGciOiJSUzI1NiJ9.access.sig1",
		AccessTokenExpiry: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RefreshToken:      "refresh-token-value",
		LastError:         &ErrorRecord{Type: "token_exchange", Code: "invalid_grant"},
	}

	for _, out := range []string{s.String(), fmt.Sprintf("%v", s), fmt.Sprintf("%+v", s), fmt.Sprintf("%#v", s)} {
		assert.NotContains(t, out, "access.sig1")
		assert.NotContains(t, out, "refresh-token-value")
		assert.Contains(t, out, "[REDACTED]...sig1")
		assert.Contains(t, out, "2026-03-01T12:00:00Z")
		assert.Contains(t, out, "token_exchange/invalid_grant")
	}
	assert.True(t, strings.HasPrefix(fmt.Sprintf("%#v", s), "auth.AuthState{"))
	assert.Contains(t, Empty().String(), `AccessToken:""`)
}
