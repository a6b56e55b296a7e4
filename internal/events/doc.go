// Package events provides the session expiry bus: a live, one-to-many signal
// that the current session can no longer be used.
//
// Publish never blocks. Each subscriber has its own buffered channel; if that
// buffer is full the event is dropped for that subscriber only. Late
// subscribers do not receive earlier events and repeated publishes are not
// merged.
package events
