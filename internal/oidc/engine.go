package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
	"launchpad/pkg/oauth"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// Engine drives discovery, the authorization code flow with PKCE, refresh and
// RP-initiated logout. Apart from the provider cache it keeps no state between
// calls.
type Engine struct {
	cfg     Config
	issuers IssuerSource
	store   StateReplacer
	client  *http.Client
	now     func() time.Time

	mu        sync.Mutex
	cached    *ProviderConfiguration
	fetchedAt time.Time
	flight    singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. Successful refreshes are written to store.
func NewEngine(cfg Config, issuers IssuerSource, store StateReplacer, opts ...Option) *Engine {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.ProviderTTL == 0 {
		cfg.ProviderTTL = DefaultProviderTTL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	e := &Engine{
		cfg:     cfg,
		issuers: issuers,
		store:   store,
		client:  client,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clientContext(ctx context.Context) context.Context {
	return gooidc.ClientContext(ctx, e.client)
}

// Discover fetches the provider metadata for issuer. It never uses the cache.
func (e *Engine) Discover(ctx context.Context, issuer string) (*ProviderConfiguration, error) {
	logging.Debug("OIDC", "Discovering provider metadata for %s", issuer)

	provider, err := gooidc.NewProvider(e.clientContext(ctx), issuer)
	if err != nil {
		return nil, &auth.DiscoveryError{Issuer: issuer, Err: err}
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, &auth.DiscoveryError{Issuer: issuer, Err: fmt.Errorf("malformed metadata: %w", err)}
	}

	endpoint := provider.Endpoint()
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, &auth.DiscoveryError{Issuer: issuer, Err: errors.New("metadata lacks authorization or token endpoint")}
	}

	return &ProviderConfiguration{
		Issuer:                issuer,
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		EndSessionEndpoint:    extra.EndSessionEndpoint,
		provider:              provider,
	}, nil
}

// Provider returns the provider configuration for the configured issuer,
// discovering it at most once per ProviderTTL. Concurrent callers share one
// fetch.
func (e *Engine) Provider(ctx context.Context) (*ProviderConfiguration, error) {
	e.mu.Lock()
	if e.cached != nil && e.now().Sub(e.fetchedAt) < e.cfg.ProviderTTL {
		pc := e.cached
		e.mu.Unlock()
		return pc, nil
	}
	e.mu.Unlock()

	v, err, _ := e.flight.Do("provider", func() (interface{}, error) {
		// Double-check after winning the flight.
		e.mu.Lock()
		if e.cached != nil && e.now().Sub(e.fetchedAt) < e.cfg.ProviderTTL {
			pc := e.cached
			e.mu.Unlock()
			return pc, nil
		}
		e.mu.Unlock()

		issuer, err := e.issuers.Issuer(ctx)
		if err != nil {
			return nil, &auth.DiscoveryError{Err: fmt.Errorf("failed to resolve issuer: %w", err)}
		}
		pc, err := e.Discover(ctx, issuer)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.cached = pc
		e.fetchedAt = e.now()
		e.mu.Unlock()
		return pc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProviderConfiguration), nil
}

// ForgetProvider drops the cached metadata.
func (e *Engine) ForgetProvider() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cached = nil
}

func (e *Engine) oauth2Config(pc *ProviderConfiguration) *oauth2.Config {
	return &oauth2.Config{
		ClientID: e.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  pc.AuthorizationEndpoint,
			TokenURL: pc.TokenEndpoint,
			// Public client: client_id travels in the form body.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: e.cfg.RedirectURI,
		Scopes:      e.cfg.Scopes,
	}
}

// BeginAuthorization builds a PKCE (S256) authorization request. The caller
// opens URL in the system browser and waits for the redirect.
func (e *Engine) BeginAuthorization(ctx context.Context) (*AuthorizationRequest, error) {
	pc, err := e.Provider(ctx)
	if err != nil {
		return nil, err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}
	nonce, err := oauth.GenerateNonce()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	authURL := e.oauth2Config(pc).AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		gooidc.Nonce(nonce),
	)

	logging.Audit("OIDC", "authorization_started", "issuer", pc.Issuer, "redirect_uri", e.cfg.RedirectURI)
	return &AuthorizationRequest{
		URL:          authURL,
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		RedirectURI:  e.cfg.RedirectURI,
		CreatedAt:    e.now(),
		provider:     pc,
	}, nil
}

// CompleteAuthorization validates the redirect and exchanges the code.
//
// A redirect error, a state mismatch or a missing code yields an
// *auth.AuthorizationError. A rejected exchange yields an unauthorized state
// carrying the error record together with an *auth.TokenExchangeError.
func (e *Engine) CompleteAuthorization(ctx context.Context, req *AuthorizationRequest, res RedirectResult) (auth.AuthState, error) {
	if req == nil {
		return auth.Empty(), &auth.AuthorizationError{Code: "invalid_request", Description: "no authorization in progress"}
	}
	if res.IsError() {
		logging.Audit("OIDC", "authorization_denied", "error", res.Error)
		return auth.Empty(), &auth.AuthorizationError{Code: res.Error, Description: res.ErrorDescription}
	}
	if res.State != req.State {
		logging.Audit("OIDC", "authorization_state_mismatch")
		return auth.Empty(), &auth.AuthorizationError{Code: "state_mismatch", Description: "state parameter mismatch, possible CSRF"}
	}
	if res.Code == "" {
		return auth.Empty(), &auth.AuthorizationError{Code: "invalid_request", Description: "redirect carried no authorization code"}
	}

	pc := req.provider
	if pc == nil {
		var err error
		if pc, err = e.Provider(ctx); err != nil {
			return auth.Empty(), err
		}
	}

	cctx := e.clientContext(ctx)
	token, err := e.oauth2Config(pc).Exchange(cctx, res.Code, oauth2.VerifierOption(req.CodeVerifier))
	if err != nil {
		xerr := exchangeError(grantAuthorizationCode, err)
		logging.Error("OIDC", xerr, "Authorization code exchange failed")
		return auth.Empty().WithError(xerr.Record()), xerr
	}

	state := e.stateFromToken(token, nil)
	if state.IDToken != "" {
		if err := e.verifyIDToken(cctx, pc, state.IDToken, req.Nonce); err != nil {
			texErr := &auth.TokenExchangeError{Grant: grantAuthorizationCode, Code: "invalid_id_token", Err: err}
			logging.Error("OIDC", texErr, "ID token rejected")
			return auth.Empty().WithError(texErr.Record()), texErr
		}
	}

	logging.Audit("OIDC", "authorization_completed",
		"issuer", pc.Issuer,
		"has_refresh_token", state.RefreshToken != "",
		"expires_at", state.AccessTokenExpiry)
	return state, nil
}

func (e *Engine) verifyIDToken(ctx context.Context, pc *ProviderConfiguration, raw, nonce string) error {
	verifier := pc.provider.Verifier(&gooidc.Config{ClientID: e.cfg.ClientID, Now: e.now})
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return err
	}
	if idToken.Nonce != nonce {
		return errors.New("nonce mismatch")
	}
	return nil
}

// Refresh runs a refresh grant for current. Without a refresh token it fails
// with auth.ErrRefreshImpossible and makes no network call. On success the
// new state is written to the store; on failure nothing is written.
func (e *Engine) Refresh(ctx context.Context, current auth.AuthState) RefreshResult {
	if !current.CanRefresh() {
		return RefreshResult{State: current, Err: auth.ErrRefreshImpossible}
	}

	pc, err := e.Provider(ctx)
	if err != nil {
		return RefreshResult{State: current, Err: err}
	}

	src := e.oauth2Config(pc).TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := src.Token()
	if err != nil {
		xerr := exchangeError(grantRefreshToken, err)
		logging.Warn("OIDC", "Refresh failed: %v", xerr)
		return RefreshResult{State: current, Err: xerr}
	}

	next := e.stateFromToken(token, &current)
	stored := e.store.Replace(next)
	logging.Debug("OIDC", "Refreshed access token, valid until %s", stored.AccessTokenExpiry.Format(time.RFC3339))
	return RefreshResult{Success: true, State: stored}
}

// EndSession builds the RP-initiated logout request.
func (e *Engine) EndSession(ctx context.Context, idToken string) (*LogoutRequest, error) {
	pc, err := e.Provider(ctx)
	if err != nil {
		return nil, err
	}
	if pc.EndSessionEndpoint == "" {
		return nil, &auth.DiscoveryError{Issuer: pc.Issuer, Err: errors.New("provider does not advertise an end_session_endpoint")}
	}

	u, err := url.Parse(pc.EndSessionEndpoint)
	if err != nil {
		return nil, &auth.DiscoveryError{Issuer: pc.Issuer, Err: fmt.Errorf("invalid end_session_endpoint: %w", err)}
	}
	q := u.Query()
	q.Set("client_id", e.cfg.ClientID)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if e.cfg.PostLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", e.cfg.PostLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()

	return &LogoutRequest{URL: u.String()}, nil
}

// stateFromToken builds a new session from a token response. Values the
// response omits are carried over from prev.
func (e *Engine) stateFromToken(token *oauth2.Token, prev *auth.AuthState) auth.AuthState {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = e.now().Add(DefaultTokenLifetime)
	}

	state := auth.AuthState{
		Authorized:        true,
		AccessToken:       token.AccessToken,
		AccessTokenExpiry: expiry,
		RefreshToken:      token.RefreshToken,
	}
	if raw, ok := token.Extra("id_token").(string); ok {
		state.IDToken = raw
	}
	if prev != nil {
		if state.RefreshToken == "" {
			state.RefreshToken = prev.RefreshToken
		}
		if state.IDToken == "" {
			state.IDToken = prev.IDToken
		}
	}
	return state
}

// exchangeError classifies a failed token request. Only an answer from the
// provider that rejects the grant is a *auth.TokenExchangeError; transport
// failures and server errors become *auth.TokenEndpointError.
func exchangeError(grant string, err error) exchangeFailure {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &auth.TokenEndpointError{Grant: grant, Err: err}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if re.ErrorCode == "" && (status == 0 || status >= http.StatusInternalServerError) {
		return &auth.TokenEndpointError{Grant: grant, StatusCode: status, Err: err}
	}
	return &auth.TokenExchangeError{Grant: grant, Code: re.ErrorCode, Description: re.ErrorDescription, Err: err}
}

type exchangeFailure interface {
	error
	Record() *auth.ErrorRecord
}

// ParseRedirect extracts the authorization response from a redirect URL.
func ParseRedirect(rawURL string) (RedirectResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RedirectResult{}, fmt.Errorf("invalid redirect URL: %w", err)
	}
	return redirectFromQuery(u.Query()), nil
}

func redirectFromQuery(q url.Values) RedirectResult {
	return RedirectResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}
