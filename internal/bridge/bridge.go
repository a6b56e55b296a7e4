// Package bridge opens target applications through the backend's
// isolated-session bridge.
//
// The bridge exchanges a one-time ticket, minted with the user's bearer token,
// for a session on the target realm. The bridge URL is opened in the user's
// persistent browser profile so the identity provider's SSO cookies are
// visible to it. An ephemeral profile would defeat the hand-off.
package bridge

import (
	"context"
	"fmt"
	"net/url"

	"launchpad/internal/browser"
	"launchpad/pkg/logging"
)

const bridgePath = "/auth/bridge"

// TokenEnsurer guarantees a fresh access token.
type TokenEnsurer interface {
	EnsureFreshToken(ctx context.Context) (string, error)
}

// TicketMinter obtains one-time bridge tickets and knows the backend origin.
type TicketMinter interface {
	RequestTicket(ctx context.Context) (string, error)
	URL(path string, query url.Values) string
}

// Bridge opens URLs through the backend bridge endpoint.
type Bridge struct {
	tokens   TokenEnsurer
	tickets  TicketMinter
	launcher browser.Launcher
	warmer   browser.Warmer
}

// New creates a bridge. warmer may be nil.
func New(tokens TokenEnsurer, tickets TicketMinter, launcher browser.Launcher, warmer browser.Warmer) *Bridge {
	if warmer == nil {
		warmer = browser.NopWarmer{}
	}
	return &Bridge{tokens: tokens, tickets: tickets, launcher: launcher, warmer: warmer}
}

// Open mints a fresh ticket and launches {backend}/auth/bridge?ticket=..&next=target.
// Every failure is returned; there is no fallback to opening target directly.
func (b *Bridge) Open(ctx context.Context, target string) error {
	if _, err := url.ParseRequestURI(target); err != nil {
		return fmt.Errorf("invalid target URL %q: %w", target, err)
	}

	if _, err := b.tokens.EnsureFreshToken(ctx); err != nil {
		return fmt.Errorf("cannot open bridge without a valid session: %w", err)
	}

	ticket, err := b.tickets.RequestTicket(ctx)
	if err != nil {
		return err
	}

	bridgeURL := b.tickets.URL(bridgePath, url.Values{
		"ticket": {ticket},
		"next":   {target},
	})
	logging.Audit("Bridge", "bridge_opened", "target", target)

	if err := b.launcher.Open(ctx, bridgeURL); err != nil {
		return fmt.Errorf("failed to launch bridge: %w", err)
	}
	return nil
}

// PreWarm primes the connection to target. It never fails.
func (b *Bridge) PreWarm(ctx context.Context, target string) {
	b.warmer.Warm(ctx, target)
}
