// Package oidc implements the client side of OpenID Connect for launchpad.
//
// The Engine performs discovery (go-oidc), the authorization code flow with
// PKCE S256 and the refresh grant (x/oauth2), and builds RP-initiated logout
// requests. The authorization leg is split in two: BeginAuthorization returns
// a URL for the system browser, and CompleteAuthorization consumes the
// redirect delivered to the loopback CallbackServer.
//
// Discover always fetches fresh metadata. The flow operations go through
// Provider, which reuses metadata for ProviderTTL and collapses concurrent
// fetches into one.
package oidc
