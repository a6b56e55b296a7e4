package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"launchpad/internal/events"
	"launchpad/internal/oidc"
	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
	"launchpad/pkg/oauth"
)

// DefaultWaitTimeout bounds how long a request waits for a shared refresh.
const DefaultWaitTimeout = 20 * time.Second

var (
	// ErrNotAuthenticated is returned by EnsureFreshToken without a session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRefreshTimeout is returned when the shared refresh did not finish
	// within the wait timeout.
	ErrRefreshTimeout = errors.New("timed out waiting for token refresh")
)

// StateSource is the read side of the token store.
type StateSource interface {
	Current() auth.AuthState
}

// Refresher performs refresh grants and persists their result.
type Refresher interface {
	Refresh(ctx context.Context, current auth.AuthState) oidc.RefreshResult
}

// Gate is an http.RoundTripper that injects bearer tokens.
type Gate struct {
	store     StateSource
	refresher Refresher
	bus       events.Publisher
	next      http.RoundTripper

	skew        time.Duration
	waitTimeout time.Duration
	now         func() time.Time

	flight singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithTransport sets the transport requests are forwarded to.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gate) { g.next = rt }
}

// WithWaitTimeout bounds the wait for a shared refresh.
func WithWaitTimeout(d time.Duration) Option {
	return func(g *Gate) { g.waitTimeout = d }
}

// WithSkew sets how early before expiry a token is refreshed.
func WithSkew(d time.Duration) Option {
	return func(g *Gate) { g.skew = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate. bus may be nil.
func New(store StateSource, refresher Refresher, bus events.Publisher, opts ...Option) *Gate {
	g := &Gate{
		store:       store,
		refresher:   refresher,
		bus:         bus,
		next:        http.DefaultTransport,
		skew:        auth.DefaultRefreshSkew,
		waitTimeout: DefaultWaitTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Client returns an http.Client that sends every request through the gate.
func (g *Gate) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: g, Timeout: timeout}
}

// EnsureFreshToken returns a usable access token, refreshing first if the
// current one is stale. Concurrent callers share a single refresh.
func (g *Gate) EnsureFreshToken(ctx context.Context) (string, error) {
	state := g.store.Current()
	if !state.Authorized {
		return "", ErrNotAuthenticated
	}
	if !state.NeedsRefresh(g.now(), g.skew) {
		return state.AccessToken, nil
	}

	// The refresh must outlive any single caller so that one cancelled request
	// does not fail the others waiting on it.
	ch := g.flight.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.waitTimeout)
		defer cancel()
		return g.refresh(rctx)
	})

	timer := time.NewTimer(g.waitTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-timer.C:
		logging.Warn("Gate", "Token refresh did not finish within %s", g.waitTimeout)
		return "", ErrRefreshTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *Gate) refresh(ctx context.Context) (string, error) {
	// Another flight may have refreshed while this caller was queued.
	state := g.store.Current()
	if !state.Authorized {
		return "", ErrNotAuthenticated
	}
	if !state.NeedsRefresh(g.now(), g.skew) {
		return state.AccessToken, nil
	}

	logging.Debug("Gate", "Access token stale, refreshing")
	res := g.refresher.Refresh(ctx, state)
	if !res.Success {
		return "", res.Err
	}
	return res.State.AccessToken, nil
}

// RoundTrip implements http.RoundTripper. It only returns errors produced by
// the underlying transport.
func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	state := g.store.Current()
	if !state.Authorized {
		return g.next.RoundTrip(req)
	}

	token, err := g.EnsureFreshToken(req.Context())
	if err != nil {
		logging.Warn("Gate", "Sending %s %s unauthenticated: %v", req.Method, req.URL.Path, err)
		resp, rerr := g.next.RoundTrip(req)
		if rerr != nil || (resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden) {
			return resp, rerr
		}
		var texErr *auth.TokenExchangeError
		switch {
		case errors.Is(err, auth.ErrRefreshImpossible):
			g.publish(events.ReasonRefreshImpossible, req, resp)
		case errors.As(err, &texErr):
			g.publish(events.ReasonRefreshFailed, req, resp)
		default:
			// Timeouts and unreachable token endpoints leave the refresh token
			// usable, so the session is not expired.
			logging.Debug("Gate", "Not expiring the session after a transient refresh failure")
		}
		return resp, rerr
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := g.next.RoundTrip(authed)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		g.publish(events.ReasonRejected, req, resp)
	}
	return resp, err
}

func (g *Gate) publish(reason events.ExpiryReason, req *http.Request, resp *http.Response) {
	if g.bus == nil {
		return
	}
	ev := events.SessionExpired{
		Reason:     reason,
		StatusCode: resp.StatusCode,
		URL:        req.URL.Redacted(),
		At:         g.now(),
	}
	if c := oauth.ChallengeFromResponse(resp); c != nil {
		ev.Challenge = c.Error
		if c.InvalidToken() {
			ev.Detail = c.ErrorDescription
		}
	}
	g.bus.Publish(ev)
}
