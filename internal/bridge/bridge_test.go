package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/client"
	"launchpad/internal/gate"
	"launchpad/internal/oidc"
	"launchpad/internal/oidc/oidctest"
	"launchpad/internal/tokenstore"
	"launchpad/pkg/auth"
)

type recordingLauncher struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (r *recordingLauncher) Open(_ context.Context, u string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, u)
	return r.err
}

type fixture struct {
	bridge   *Bridge
	store    *tokenstore.Store
	provider *oidctest.Provider
	launcher *recordingLauncher

	mu           sync.Mutex
	ticketAuth   []string
	ticketStatus int
	backendURL   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ticketStatus: http.StatusOK, launcher: &recordingLauncher{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/ticket" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.mu.Lock()
		f.ticketAuth = append(f.ticketAuth, r.Header.Get("Authorization"))
		status := f.ticketStatus
		f.mu.Unlock()
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"ticket":"tkt-42"}`)
		}
	}))
	t.Cleanup(srv.Close)
	f.backendURL = srv.URL

	f.provider = oidctest.New(t, "launchpad-cli")
	f.store = tokenstore.NewFileStore(t.TempDir())
	engine := oidc.NewEngine(oidc.Config{ClientID: "launchpad-cli", RedirectURI: "http://127.0.0.1:8765/callback"},
		oidc.StaticIssuer(f.provider.Issuer()), f.store)
	g := gate.New(f.store, engine, nil)

	api, err := client.New(srv.URL, g, client.WithRetry(0, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	f.bridge = New(g, api, f.launcher, nil)
	return f
}

func (f *fixture) ticketCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ticketAuth...)
}

func TestOpen_FreshToken(t *testing.T) {
	f := newFixture(t)
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(time.Hour), RefreshToken: "R"})

	target := "https://grafana.example.com/d/abc?orgId=1"
	require.NoError(t, f.bridge.Open(context.Background(), target))

	assert.Equal(t, []string{"Bearer A"}, f.ticketCalls())
	require.Len(t, f.launcher.opened, 1)

	u, err := url.Parse(f.launcher.opened[0])
	require.NoError(t, err)
	assert.Equal(t, f.backendURL+"/auth/bridge", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "tkt-42", u.Query().Get("ticket"))
	assert.Equal(t, target, u.Query().Get("next"))
	assert.Equal(t, 0, f.provider.RefreshCalls())
}

func TestOpen_RefreshesBeforeMintingTicket(t *testing.T) {
	f := newFixture(t)
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(-time.Minute), RefreshToken: "R"})

	require.NoError(t, f.bridge.Open(context.Background(), "https://app.example.com/"))

	assert.Equal(t, 1, f.provider.RefreshCalls())
	assert.Equal(t, []string{"Bearer " + f.store.Current().AccessToken}, f.ticketCalls())
	assert.Len(t, f.launcher.opened, 1)
}

func TestOpen_NotAuthenticated(t *testing.T) {
	f := newFixture(t)

	err := f.bridge.Open(context.Background(), "https://app.example.com/")

	assert.ErrorIs(t, err, gate.ErrNotAuthenticated)
	assert.Empty(t, f.ticketCalls())
	assert.Empty(t, f.launcher.opened)
}

func TestOpen_RefreshFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.provider.RefreshError = "invalid_grant"
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(-time.Minute), RefreshToken: "R"})

	err := f.bridge.Open(context.Background(), "https://app.example.com/")

	var texErr *auth.TokenExchangeError
	assert.True(t, errors.As(err, &texErr))
	assert.Empty(t, f.ticketCalls())
	assert.Empty(t, f.launcher.opened)
}

func TestOpen_TicketFailure(t *testing.T) {
	f := newFixture(t)
	f.ticketStatus = http.StatusInternalServerError
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(time.Hour)})

	err := f.bridge.Open(context.Background(), "https://app.example.com/")

	var tre *auth.TicketRequestError
	require.True(t, errors.As(err, &tre))
	assert.Equal(t, http.StatusInternalServerError, tre.StatusCode)
	assert.Empty(t, f.launcher.opened)
}

func TestOpen_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.launcher.err = errors.New("no display")
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(time.Hour)})

	err := f.bridge.Open(context.Background(), "https://app.example.com/")
	assert.ErrorContains(t, err, "no display")
}

func TestOpen_InvalidTarget(t *testing.T) {
	f := newFixture(t)
	f.store.Replace(auth.AuthState{Authorized: true, AccessToken: "A", AccessTokenExpiry: time.Now().Add(time.Hour)})

	assert.Error(t, f.bridge.Open(context.Background(), "not a url"))
	assert.Empty(t, f.ticketCalls())
}

type countingWarmer struct{ targets []string }

func (c *countingWarmer) Warm(_ context.Context, target string) {
	c.targets = append(c.targets, target)
}

func TestPreWarm(t *testing.T) {
	w := &countingWarmer{}
	b := New(nil, nil, &recordingLauncher{}, w)
	b.PreWarm(context.Background(), "https://app.example.com/")
	assert.Equal(t, []string{"https://app.example.com/"}, w.targets)

	assert.NotPanics(t, func() {
		New(nil, nil, &recordingLauncher{}, nil).PreWarm(context.Background(), "https://app.example.com/")
	})
}
