// Package oidctest provides an in-process OpenID Connect provider for tests.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const keyID = "oidctest"

type pendingCode struct {
	challenge string
	nonce     string
}

// Provider is a minimal OIDC provider backed by httptest.Server. It issues
// access tokens named "access-<n>" and refresh tokens named "refresh-<n>".
type Provider struct {
	*httptest.Server

	ClientID string

	// ExpiresIn is returned as expires_in. Zero omits the field.
	ExpiresIn int
	// RefreshDelay is slept before answering a refresh grant.
	RefreshDelay time.Duration
	// RefreshError, when set, is returned as the OAuth error of refresh grants.
	RefreshError string
	// CodeError, when set, is returned as the OAuth error of code grants.
	CodeError string
	// TokenStatus, when set, fails every token request with this HTTP status
	// and a plain-text body.
	TokenStatus int
	// OmitRefreshToken drops refresh_token from refresh responses.
	OmitRefreshToken bool
	// BadNonce signs ID tokens with a nonce that does not match the request.
	BadNonce bool

	key *rsa.PrivateKey

	mu               sync.Mutex
	codes            map[string]pendingCode
	lastRefreshToken string
	issued           int

	discoveryCalls atomic.Int32
	codeCalls      atomic.Int32
	refreshCalls   atomic.Int32
}

// New starts a provider and registers its shutdown with t.
func New(t testing.TB, clientID string) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	p := &Provider{
		ClientID:  clientID,
		ExpiresIn: 300,
		key:       key,
		codes:     make(map[string]pendingCode),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("/jwks", p.handleJWKS)
	mux.HandleFunc("/token", p.handleToken)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// Issuer returns the issuer URL.
func (p *Provider) Issuer() string { return p.URL }

// DiscoveryCalls returns how many times the metadata document was fetched.
func (p *Provider) DiscoveryCalls() int { return int(p.discoveryCalls.Load()) }

// CodeCalls returns the number of authorization code grants received.
func (p *Provider) CodeCalls() int { return int(p.codeCalls.Load()) }

// RefreshCalls returns the number of refresh grants received.
func (p *Provider) RefreshCalls() int { return int(p.refreshCalls.Load()) }

// LastRefreshToken returns the refresh token presented by the latest refresh
// grant.
func (p *Provider) LastRefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefreshToken
}

// Approve simulates the user consenting to authURL. It records the PKCE
// challenge and nonce and returns the redirect query the browser would
// deliver.
func (p *Provider) Approve(authURL string) (url.Values, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if q.Get("client_id") != p.ClientID {
		return nil, fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("code_challenge_method") != "S256" {
		return nil, fmt.Errorf("unexpected code_challenge_method %q", q.Get("code_challenge_method"))
	}

	p.mu.Lock()
	p.issued++
	code := fmt.Sprintf("code-%d", p.issued)
	p.codes[code] = pendingCode{challenge: q.Get("code_challenge"), nonce: q.Get("nonce")}
	p.mu.Unlock()

	return url.Values{"code": {code}, "state": {q.Get("state")}}, nil
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	p.discoveryCalls.Add(1)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                p.URL,
		"authorization_endpoint":                p.URL + "/authorize",
		"token_endpoint":                        p.URL + "/token",
		"jwks_uri":                              p.URL + "/jwks",
		"end_session_endpoint":                  p.URL + "/logout",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *Provider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	key, err := jwk.FromRaw(&p.key.PublicKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = key.Set(jwk.KeyIDKey, keyID)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = key.Set(jwk.KeyUsageKey, "sig")

	set := jwk.NewSet()
	_ = set.AddKey(key)
	writeJSON(w, http.StatusOK, set)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if p.TokenStatus != 0 {
		http.Error(w, http.StatusText(p.TokenStatus), p.TokenStatus)
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("client_id") != p.ClientID {
		oauthError(w, "invalid_client", "unknown client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.codeCalls.Add(1)
		p.handleCodeGrant(w, r)
	case "refresh_token":
		p.refreshCalls.Add(1)
		p.handleRefreshGrant(w, r)
	default:
		oauthError(w, "unsupported_grant_type", r.PostForm.Get("grant_type"))
	}
}

func (p *Provider) handleCodeGrant(w http.ResponseWriter, r *http.Request) {
	if p.CodeError != "" {
		oauthError(w, p.CodeError, "code rejected")
		return
	}

	p.mu.Lock()
	pending, ok := p.codes[r.PostForm.Get("code")]
	delete(p.codes, r.PostForm.Get("code"))
	p.mu.Unlock()
	if !ok {
		oauthError(w, "invalid_grant", "unknown or reused code")
		return
	}

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != pending.challenge {
		oauthError(w, "invalid_grant", "PKCE verification failed")
		return
	}

	nonce := pending.nonce
	if p.BadNonce {
		nonce = "not-" + nonce
	}
	idToken, err := p.SignIDToken(jwt.MapClaims{"nonce": nonce, "email": "ada@example.com", "preferred_username": "ada"})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.writeTokens(w, idToken, true)
}

func (p *Provider) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.lastRefreshToken = r.PostForm.Get("refresh_token")
	p.mu.Unlock()

	if p.RefreshDelay > 0 {
		time.Sleep(p.RefreshDelay)
	}
	if p.RefreshError != "" {
		oauthError(w, p.RefreshError, "refresh rejected")
		return
	}
	p.writeTokens(w, "", !p.OmitRefreshToken)
}

func (p *Provider) writeTokens(w http.ResponseWriter, idToken string, withRefresh bool) {
	p.mu.Lock()
	p.issued++
	n := p.issued
	p.mu.Unlock()

	body := map[string]interface{}{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
	}
	if p.ExpiresIn > 0 {
		body["expires_in"] = p.ExpiresIn
	}
	if withRefresh {
		body["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	}
	if idToken != "" {
		body["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, body)
}

// SignIDToken signs an ID token for the configured client. Standard claims
// are filled in unless extra overrides them.
func (p *Provider) SignIDToken(extra jwt.MapClaims) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": p.URL,
		"aud": p.ClientID,
		"sub": "user-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(p.key)
}

func oauthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
