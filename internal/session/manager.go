package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"launchpad/internal/browser"
	"launchpad/internal/events"
	"launchpad/internal/oidc"
	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
)

// ErrLoginInProgress is returned when Login is called while another login is
// waiting for the browser.
var ErrLoginInProgress = errors.New("a login is already in progress")

// Store is the part of the token store the manager drives.
type Store interface {
	Current() auth.AuthState
	Replace(state auth.AuthState) auth.AuthState
	Clear()
}

// Flow is the part of the OIDC engine the manager drives.
type Flow interface {
	BeginAuthorization(ctx context.Context) (*oidc.AuthorizationRequest, error)
	CompleteAuthorization(ctx context.Context, req *oidc.AuthorizationRequest, res oidc.RedirectResult) (auth.AuthState, error)
	EndSession(ctx context.Context, idToken string) (*oidc.LogoutRequest, error)
}

// Receiver captures the single authorization redirect.
type Receiver interface {
	Start(ctx context.Context) error
	Wait(ctx context.Context) (oidc.RedirectResult, error)
	Stop()
}

// ReceiverFactory creates a receiver for a redirect URI.
type ReceiverFactory func(redirectURI string) (Receiver, error)

// Manager owns the session phase and drives login and logout.
type Manager struct {
	mu    sync.RWMutex
	phase Phase
	subs  map[int]chan PhaseChange
	next  int

	store       Store
	flow        Flow
	launcher    browser.Launcher
	newReceiver ReceiverFactory
	onAuthURL   func(string)
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithReceiverFactory overrides how redirect receivers are created.
func WithReceiverFactory(f ReceiverFactory) Option {
	return func(m *Manager) { m.newReceiver = f }
}

// WithAuthURLHandler registers a callback invoked with every authorization
// URL before the browser is opened, so it can be shown to the user.
func WithAuthURLHandler(fn func(url string)) Option {
	return func(m *Manager) { m.onAuthURL = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager whose initial phase reflects the store.
func NewManager(store Store, flow Flow, launcher browser.Launcher, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		flow:     flow,
		launcher: launcher,
		subs:     make(map[int]chan PhaseChange),
		now:      time.Now,
		newReceiver: func(redirectURI string) (Receiver, error) {
			return oidc.NewCallbackServer(redirectURI)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.phase = phaseOf(store.Current())
	return m
}

func phaseOf(s auth.AuthState) Phase {
	if s.Authorized {
		return PhaseAuthenticated
	}
	return PhaseLoggedOut
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Subscribe registers for phase changes. Slow subscribers miss changes.
func (m *Manager) Subscribe(buffer int) (<-chan PhaseChange, func()) {
	ch := make(chan PhaseChange, buffer)

	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// transition must be called with mu held.
func (m *Manager) transition(to Phase, cause string) {
	if m.phase == to {
		return
	}
	change := PhaseChange{From: m.phase, To: to, Cause: cause, At: m.now()}
	m.phase = to
	logging.Info("Session", "%s -> %s (%s)", change.From, change.To, cause)
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (m *Manager) set(to Phase, cause string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(to, cause)
}

// Sync re-derives the phase from the store. It is a no-op during a login.
func (m *Manager) Sync() Phase {
	state := m.store.Current()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseLoggingIn {
		m.transition(phaseOf(state), "store changed")
	}
	return m.phase
}

// Login runs the interactive authorization code flow to completion. On
// failure the phase falls back to what the store holds.
func (m *Manager) Login(ctx context.Context) (auth.AuthState, error) {
	m.mu.Lock()
	if m.phase == PhaseLoggingIn {
		m.mu.Unlock()
		return auth.AuthState{}, ErrLoginInProgress
	}
	m.transition(PhaseLoggingIn, "login started")
	m.mu.Unlock()

	state, err := m.login(ctx)
	if err != nil {
		m.set(phaseOf(m.store.Current()), "login failed")
		return state, err
	}
	m.set(PhaseAuthenticated, "login completed")
	return state, nil
}

func (m *Manager) login(ctx context.Context) (auth.AuthState, error) {
	req, err := m.flow.BeginAuthorization(ctx)
	if err != nil {
		return auth.AuthState{}, err
	}

	rcv, err := m.newReceiver(req.RedirectURI)
	if err != nil {
		return auth.AuthState{}, err
	}
	if err := rcv.Start(ctx); err != nil {
		return auth.AuthState{}, err
	}
	defer rcv.Stop()

	if m.onAuthURL != nil {
		m.onAuthURL(req.URL)
	}
	if err := m.launcher.Open(ctx, req.URL); err != nil {
		logging.Warn("Session", "Could not open the browser, continue manually: %v", err)
	}

	res, err := rcv.Wait(ctx)
	if err != nil {
		return auth.AuthState{}, &auth.AuthorizationError{Code: "cancelled", Description: "no redirect received", Err: err}
	}

	state, err := m.flow.CompleteAuthorization(ctx, req, res)
	if err != nil {
		// A failed re-login must not wipe a working session.
		if state.LastError != nil && !m.store.Current().Authorized {
			m.store.Replace(state)
		}
		logging.Audit("Session", "login_failed", "error", err.Error())
		return state, err
	}

	stored := m.store.Replace(state)
	logging.Debug("Session", "Stored session %s", stored)
	logging.Audit("Session", "login_succeeded", "expires_at", stored.AccessTokenExpiry.Format(time.RFC3339))
	return stored, nil
}

// Logout ends the session at the provider when possible and always clears
// the local session. Provider errors are returned after the local clear.
func (m *Manager) Logout(ctx context.Context) error {
	state := m.store.Current()

	var endErr error
	if state.IDToken != "" {
		req, err := m.flow.EndSession(ctx, state.IDToken)
		switch {
		case err != nil:
			endErr = fmt.Errorf("provider logout failed: %w", err)
		case req != nil:
			if err := m.launcher.Open(ctx, req.URL); err != nil {
				logging.Warn("Session", "Could not open the provider logout page: %v", err)
			}
		}
	}

	m.store.Clear()
	logging.Audit("Session", "logout")

	m.set(PhaseLoggedOut, "logout")
	return endErr
}

// Expire handles a session expiry notification. An authenticated session is
// marked unauthorized with the reason recorded, and the phase moves to
// LoggedOut.
func (m *Manager) Expire(ev events.SessionExpired) {
	state := m.store.Current()
	if !state.Authorized {
		return
	}

	desc := ev.Challenge
	if ev.Detail != "" {
		desc += ": " + ev.Detail
	}
	m.store.Replace(state.WithError(&auth.ErrorRecord{
		Type:        "session_expired",
		Code:        string(ev.Reason),
		Description: desc,
	}))
	logging.Audit("Session", "session_expired", "reason", string(ev.Reason), "status", ev.StatusCode)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseLoggingIn {
		m.transition(PhaseLoggedOut, string(ev.Reason))
	}
}

// Run consumes expiry events from bus until ctx is done.
func (m *Manager) Run(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe(events.DefaultBufferSize)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Expire(ev)
		}
	}
}
