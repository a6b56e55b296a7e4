// Package session tracks whether the user is logged out, logging in or
// authenticated, and drives the interactive login and logout flows.
//
// The phase is derived from the token store plus explicit session expiry
// events. Subscribers receive every transition without replay.
package session
