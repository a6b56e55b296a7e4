// Package client is the typed REST client for the launchpad backend.
//
// Requests are retried on transport errors and 5xx/429 responses by
// go-retryablehttp. Authentication is the transport's concern: the composition
// root passes the request gate as transport for authenticated use, and a plain
// transport for the issuer lookup that the gate itself depends on.
//
// Every request carries an X-Request-ID header so backend logs can be matched
// with client logs.
package client
