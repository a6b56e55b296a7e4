package browser

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"launchpad/pkg/logging"
)

// Warmer primes a connection to a URL that is about to be opened. It has no
// correctness obligations.
type Warmer interface {
	Warm(ctx context.Context, target string)
}

// NopWarmer does nothing.
type NopWarmer struct{}

func (NopWarmer) Warm(context.Context, string) {}

// HTTPWarmer resolves and connects to the target origin with a HEAD request so
// DNS, TCP and TLS are already cached when the browser asks.
type HTTPWarmer struct {
	Client  *http.Client
	Timeout time.Duration
}

func (w HTTPWarmer) Warm(ctx context.Context, target string) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return
	}
	origin := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}

	timeout := w.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, origin.String(), nil)
	if err != nil {
		return
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debug("Browser", "Pre-warm of %s failed: %v", origin.Host, err)
		return
	}
	resp.Body.Close()
}
