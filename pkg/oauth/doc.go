// Package oauth contains small OAuth 2.0 helpers shared across launchpad:
// random state and nonce generation, WWW-Authenticate challenge parsing and
// a Stringer that keeps token values out of logs.
//
// The protocol flows themselves live in internal/oidc.
package oauth
