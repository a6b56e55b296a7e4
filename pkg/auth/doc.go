// Package auth holds the session data model shared by the token store, the
// OIDC flow engine, the request gate and the CLI.
//
// AuthState is a value type. It is never mutated in place after it has been
// handed to the token store; every change produces a new value that replaces
// the previous one wholesale.
//
// The error types in this package form the taxonomy surfaced to callers:
// DiscoveryError, AuthorizationError, TokenExchangeError, ErrRefreshImpossible,
// StorageError and TicketRequestError. All of them support errors.As and
// errors.Is through Unwrap.
package auth
