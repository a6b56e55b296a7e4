package oidc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/oidc/oidctest"
	"launchpad/pkg/auth"
)

const testClientID = "launchpad-cli"

type recordingStore struct {
	mu       sync.Mutex
	replaced []auth.AuthState
}

func (r *recordingStore) Replace(s auth.AuthState) auth.AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced = append(r.replaced, s)
	return s
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replaced)
}

func newTestEngine(t *testing.T, p *oidctest.Provider, store StateReplacer, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(Config{
		ClientID:              testClientID,
		RedirectURI:           "http://127.0.0.1:8765/callback",
		PostLogoutRedirectURI: "http://127.0.0.1:8765/logged-out",
	}, StaticIssuer(p.Issuer()), store, opts...)
}

func login(t *testing.T, e *Engine, p *oidctest.Provider) (auth.AuthState, error) {
	t.Helper()
	req, err := e.BeginAuthorization(context.Background())
	require.NoError(t, err)

	q, err := p.Approve(req.URL)
	require.NoError(t, err)

	return e.CompleteAuthorization(context.Background(), req, RedirectResult{Code: q.Get("code"), State: q.Get("state")})
}

func TestDiscover_AlwaysFetches(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newTestEngine(t, p, &recordingStore{})

	pc, err := e.Discover(context.Background(), p.Issuer())
	require.NoError(t, err)
	assert.Equal(t, p.URL+"/authorize", pc.AuthorizationEndpoint)
	assert.Equal(t, p.URL+"/token", pc.TokenEndpoint)
	assert.Equal(t, p.URL+"/logout", pc.EndSessionEndpoint)

	_, err = e.Discover(context.Background(), p.Issuer())
	require.NoError(t, err)
	assert.Equal(t, 2, p.DiscoveryCalls())
}

func TestDiscover_Failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e := NewEngine(Config{ClientID: testClientID}, StaticIssuer(srv.URL), &recordingStore{})
	_, err := e.Discover(context.Background(), srv.URL)

	var discErr *auth.DiscoveryError
	require.True(t, errors.As(err, &discErr))
	assert.Equal(t, srv.URL, discErr.Issuer)

	_, err = e.BeginAuthorization(context.Background())
	assert.True(t, errors.As(err, &discErr))
}

func TestProvider_CachedAndShared(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newTestEngine(t, p, &recordingStore{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Provider(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := e.BeginAuthorization(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, p.DiscoveryCalls())

	e.ForgetProvider()
	_, err = e.Provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.DiscoveryCalls())
}

func TestProvider_ExpiresAfterTTL(t *testing.T) {
	p := oidctest.New(t, testClientID)
	now := time.Now()
	clock := func() time.Time { return now }
	e := newTestEngine(t, p, &recordingStore{}, WithClock(clock))

	_, err := e.Provider(context.Background())
	require.NoError(t, err)

	now = now.Add(DefaultProviderTTL + time.Second)
	_, err = e.Provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.DiscoveryCalls())
}

func TestBeginAuthorization_BuildsPKCERequest(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newTestEngine(t, p, &recordingStore{})

	req, err := e.BeginAuthorization(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, p.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:8765/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email offline_access", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotContains(t, req.URL, req.CodeVerifier)
	assert.Equal(t, req.State, q.Get("state"))
	assert.Equal(t, req.Nonce, q.Get("nonce"))
}

func TestCompleteAuthorization_Success(t *testing.T) {
	p := oidctest.New(t, testClientID)
	store := &recordingStore{}
	e := newTestEngine(t, p, store)

	before := time.Now()
	state, err := login(t, e, p)
	require.NoError(t, err)

	assert.True(t, state.Authorized)
	assert.NotEmpty(t, state.AccessToken)
	assert.NotEmpty(t, state.RefreshToken)
	assert.NotEmpty(t, state.IDToken)
	assert.Nil(t, state.LastError)
	assert.WithinDuration(t, before.Add(300*time.Second), state.AccessTokenExpiry, 5*time.Second)
	assert.Equal(t, 0, store.count(), "completing authorization leaves persistence to the caller")
}

func TestCompleteAuthorization_MissingExpiryUsesDefault(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.ExpiresIn = 0
	now := time.Now()
	e := newTestEngine(t, p, &recordingStore{}, WithClock(func() time.Time { return now }))

	state, err := login(t, e, p)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTokenLifetime), state.AccessTokenExpiry)
}

func TestCompleteAuthorization_RedirectErrors(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newTestEngine(t, p, &recordingStore{})
	req, err := e.BeginAuthorization(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name       string
		result     RedirectResult
		wantCode   string
		wantCancel bool
	}{
		{"denied", RedirectResult{Error: "access_denied", State: req.State}, "access_denied", true},
		{"state mismatch", RedirectResult{Code: "c", State: "other"}, "state_mismatch", false},
		{"missing code", RedirectResult{State: req.State}, "invalid_request", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := e.CompleteAuthorization(context.Background(), req, tt.result)

			var authErr *auth.AuthorizationError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantCode, authErr.Code)
			assert.Equal(t, tt.wantCancel, authErr.Cancelled())
			assert.False(t, state.Authorized)
		})
	}
	assert.Equal(t, 0, p.CodeCalls())
}

func TestCompleteAuthorization_ExchangeRejected(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.CodeError = "invalid_grant"
	e := newTestEngine(t, p, &recordingStore{})

	state, err := login(t, e, p)

	var texErr *auth.TokenExchangeError
	require.True(t, errors.As(err, &texErr))
	assert.Equal(t, "invalid_grant", texErr.Code)
	assert.False(t, state.Authorized)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "token_exchange", state.LastError.Type)
	assert.Equal(t, "invalid_grant", state.LastError.Code)
}

func TestCompleteAuthorization_NonceMismatch(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.BadNonce = true
	e := newTestEngine(t, p, &recordingStore{})

	state, err := login(t, e, p)

	var texErr *auth.TokenExchangeError
	require.True(t, errors.As(err, &texErr))
	assert.Equal(t, "invalid_id_token", texErr.Code)
	assert.False(t, state.Authorized)
}

func TestRefresh_WithoutRefreshTokenNeverCallsNetwork(t *testing.T) {
	p := oidctest.New(t, testClientID)
	store := &recordingStore{}
	e := newTestEngine(t, p, store)

	current := auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(-time.Minute)}
	res := e.Refresh(context.Background(), current)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, auth.ErrRefreshImpossible)
	assert.Equal(t, current, res.State)
	assert.Equal(t, 0, p.DiscoveryCalls())
	assert.Equal(t, 0, p.RefreshCalls())
	assert.Equal(t, 0, store.count())
}

func TestRefresh_SuccessPersists(t *testing.T) {
	p := oidctest.New(t, testClientID)
	store := &recordingStore{}
	e := newTestEngine(t, p, store)

	current := auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(-time.Minute), RefreshToken: "R", IDToken: "I"}
	res := e.Refresh(context.Background(), current)

	require.True(t, res.Success, "refresh failed: %v", res.Err)
	assert.Equal(t, "R", p.LastRefreshToken())
	assert.NotEqual(t, "A", res.State.AccessToken)
	assert.NotEqual(t, "R", res.State.RefreshToken)
	assert.Equal(t, "I", res.State.IDToken, "ID token carried over when the response omits it")
	assert.True(t, res.State.AccessTokenExpiry.After(time.Now()))
	require.Equal(t, 1, store.count())
	assert.Equal(t, res.State, store.replaced[0])
}

func TestRefresh_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.OmitRefreshToken = true
	e := newTestEngine(t, p, &recordingStore{})

	res := e.Refresh(context.Background(), auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now(), RefreshToken: "R"})
	require.True(t, res.Success)
	assert.Equal(t, "R", res.State.RefreshToken)
}

func TestRefresh_FailureLeavesStoreUntouched(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.RefreshError = "invalid_grant"
	store := &recordingStore{}
	e := newTestEngine(t, p, store)

	current := auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now(), RefreshToken: "R"}
	res := e.Refresh(context.Background(), current)

	assert.False(t, res.Success)
	var texErr *auth.TokenExchangeError
	require.True(t, errors.As(res.Err, &texErr))
	assert.Equal(t, "invalid_grant", texErr.Code)
	assert.Equal(t, "refresh_token", texErr.Grant)
	assert.Equal(t, current, res.State)
	assert.Equal(t, 0, store.count())
}

func TestEndSession(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newTestEngine(t, p, &recordingStore{})

	req, err := e.EndSession(context.Background(), "id-token")
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "/logout", u.Path)
	assert.Equal(t, "id-token", u.Query().Get("id_token_hint"))
	assert.Equal(t, "http://127.0.0.1:8765/logged-out", u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(t, testClientID, u.Query().Get("client_id"))
}

func TestParseRedirect(t *testing.T) {
	res, err := ParseRedirect("http://127.0.0.1:8765/callback?code=abc&state=xyz")
	require.NoError(t, err)
	assert.Equal(t, RedirectResult{Code: "abc", State: "xyz"}, res)

	res, err = ParseRedirect("http://127.0.0.1:8765/callback?error=access_denied&error_description=User+cancelled")
	require.NoError(t, err)
	assert.True(t, res.IsError())
	assert.Equal(t, "User cancelled", res.ErrorDescription)

	_, err = ParseRedirect("http://[::1")
	assert.Error(t, err)
}

func TestIdentityFromIDToken(t *testing.T) {
	p := oidctest.New(t, testClientID)
	raw, err := p.SignIDToken(jwt.MapClaims{"email": "ada@example.com", "preferred_username": "ada"})
	require.NoError(t, err)

	id, err := IdentityFromIDToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, p.Issuer(), id.Issuer)
	assert.Equal(t, "ada", id.DisplayName())
	assert.False(t, id.ExpiresAt.IsZero())

	_, err = IdentityFromIDToken("not-a-jwt")
	assert.Error(t, err)
}

// tokenEndpointDown fails every request to the token endpoint the way an
// unreachable host does.
type tokenEndpointDown struct{}

func (tokenEndpointDown) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Path == "/token" {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return http.DefaultTransport.RoundTrip(r)
}

func newUnreachableEngine(p *oidctest.Provider, store StateReplacer) *Engine {
	return NewEngine(Config{
		ClientID:    testClientID,
		RedirectURI: "http://127.0.0.1:8765/callback",
		HTTPClient:  &http.Client{Transport: tokenEndpointDown{}},
	}, StaticIssuer(p.Issuer()), store)
}

func TestRefresh_UnreachableTokenEndpointIsNotARejection(t *testing.T) {
	p := oidctest.New(t, testClientID)
	store := &recordingStore{}
	e := newUnreachableEngine(p, store)

	current := auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now(), RefreshToken: "R"}
	res := e.Refresh(context.Background(), current)

	assert.False(t, res.Success)
	var texErr *auth.TokenExchangeError
	assert.False(t, errors.As(res.Err, &texErr))
	var endErr *auth.TokenEndpointError
	require.True(t, errors.As(res.Err, &endErr))
	assert.Equal(t, "refresh_token", endErr.Grant)
	assert.ErrorIs(t, res.Err, syscall.ECONNREFUSED)
	assert.Equal(t, current, res.State)
	assert.Equal(t, 0, store.count())
}

func TestRefresh_ServerErrorIsNotARejection(t *testing.T) {
	p := oidctest.New(t, testClientID)
	p.TokenStatus = http.StatusServiceUnavailable
	e := newTestEngine(t, p, &recordingStore{})

	res := e.Refresh(context.Background(), auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now(), RefreshToken: "R"})

	var endErr *auth.TokenEndpointError
	require.True(t, errors.As(res.Err, &endErr))
	assert.Equal(t, http.StatusServiceUnavailable, endErr.StatusCode)
}

func TestCompleteAuthorization_UnreachableTokenEndpoint(t *testing.T) {
	p := oidctest.New(t, testClientID)
	e := newUnreachableEngine(p, &recordingStore{})

	state, err := login(t, e, p)

	var endErr *auth.TokenEndpointError
	require.True(t, errors.As(err, &endErr))
	assert.Equal(t, "authorization_code", endErr.Grant)
	assert.False(t, state.Authorized)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "token_endpoint", state.LastError.Type)
}
