// Package gate provides the authenticated request gate, an http.RoundTripper
// that attaches a fresh bearer token to every outgoing request.
//
// When the cached access token is stale the gate runs one refresh shared by
// all concurrent callers and blocks each caller until it completes, bounded by
// a wait timeout and the request context.
//
// The gate never fails a request for authentication reasons. If there is no
// session, or the refresh fails or times out, the original request is sent
// without an Authorization header and the server's 401/403 is reported on the
// session expiry bus. Callers therefore see backend rejections, not gate
// errors, when the session is gone. This also means a provider outage during
// refresh shows up as 401 responses from the backend.
package gate
