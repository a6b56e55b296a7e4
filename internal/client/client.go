package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryMax is the number of retries after the first attempt.
	DefaultRetryMax = 2

	maxErrorBody = 512
)

type noRetryKey struct{}

// Client talks to the launchpad backend.
type Client struct {
	base *url.URL
	rc   *retryablehttp.Client
}

// Option configures a Client.
type Option func(*retryablehttp.Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(rc *retryablehttp.Client) { rc.HTTPClient.Timeout = d }
}

// WithRetry sets the retry budget and backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(rc *retryablehttp.Client) {
		rc.RetryMax = max
		rc.RetryWaitMin = waitMin
		rc.RetryWaitMax = waitMax
	}
}

// New creates a client for baseURL that sends requests through transport.
func New(baseURL string, transport http.RoundTripper, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: DefaultTimeout}
	rc.RetryMax = DefaultRetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	for _, opt := range opts {
		opt(rc)
	}

	return &Client{base: base, rc: rc}, nil
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// URL resolves path against the backend origin with the given query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Info fetches /actuator/info.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.getJSON(ctx, "/actuator/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Applications lists the applications visible to the user.
func (c *Client) Applications(ctx context.Context) ([]Application, error) {
	var apps []Application
	if err := c.getJSON(ctx, "/api/applications", &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Categories lists the application categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var cats []Category
	if err := c.getJSON(ctx, "/api/categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// Users lists dashboard users. Requires the admin role.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, "/api/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// RequestTicket mints a one-time bridge ticket. Any failure, including an
// empty ticket, is an *auth.TicketRequestError. The call is never retried.
func (c *Client) RequestTicket(ctx context.Context) (string, error) {
	resp, err := c.do(context.WithValue(ctx, noRetryKey{}, true), http.MethodPost, "/auth/ticket", nil, "")
	if err != nil {
		return "", &auth.TicketRequestError{Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", &auth.TicketRequestError{StatusCode: resp.StatusCode, Err: err}
	}

	var t Ticket
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return "", &auth.TicketRequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed ticket response: %w", err)}
	}
	if t.Ticket == "" {
		return "", &auth.TicketRequestError{StatusCode: resp.StatusCode, Err: errors.New("response contained no ticket")}
	}
	return t.Ticket, nil
}

// Export streams the admin export document to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/admin/export", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	return nil
}

// Import uploads an export document. The call is never retried.
func (c *Client) Import(ctx context.Context, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read import document: %w", err)
	}
	resp, err := c.do(context.WithValue(ctx, noRetryKey{}, true), http.MethodPost, "/admin/import", body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.URL(path, nil), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logging.Debug("Client", "%s %s (request %s)", method, path, req.Header.Get("X-Request-ID"))
	resp, err := c.rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
