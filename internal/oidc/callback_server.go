package oidc

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"launchpad/pkg/logging"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackServer is a temporary loopback HTTP server that receives the single
// authorization redirect and then shuts down.
type CallbackServer struct {
	addr string
	path string

	server   *http.Server
	listener net.Listener
	resultCh chan RedirectResult
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
	stopped  chan struct{}
	// watchDone is closed when the context watcher started by Start exits.
	watchDone chan struct{}
}

// NewCallbackServer creates a server for redirectURI, which must be an
// http URL on a loopback host.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %q must use http on a loopback address", redirectURI)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("redirect URI host %q is not a loopback address", host)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	return &CallbackServer{
		addr:     net.JoinHostPort(host, port),
		path:     path,
		resultCh:  make(chan RedirectResult, 1),
		errorCh:   make(chan error, 1),
		stopped:   make(chan struct{}),
		watchDone: make(chan struct{}),
	}, nil
}

// Start begins listening. The server stops when ctx is cancelled or Stop is
// called, whichever comes first.
func (s *CallbackServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		defer close(s.watchDone)
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()

	logging.Debug("CallbackServer", "Listening for authorization redirect on %s%s", s.addr, s.path)
	return nil
}

// Addr returns the address the server listens on, once started.
func (s *CallbackServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Wait blocks until the redirect arrives, the server fails, ctx is done or
// CallbackTimeout elapses. An abandoned login therefore always returns.
func (s *CallbackServer) Wait(ctx context.Context) (RedirectResult, error) {
	timer := time.NewTimer(CallbackTimeout)
	defer timer.Stop()

	select {
	case res := <-s.resultCh:
		return res, nil
	case err := <-s.errorCh:
		return RedirectResult{}, err
	case <-timer.C:
		return RedirectResult{}, fmt.Errorf("timed out after %s waiting for the browser redirect", CallbackTimeout)
	case <-ctx.Done():
		return RedirectResult{}, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	result := redirectFromQuery(r.URL.Query())

	var err error
	if result.IsError() {
		err = errorTemplate.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		err = successTemplate.Execute(w, nil)
	}
	if err != nil {
		logging.Error("CallbackServer", err, "Failed to render callback page")
	}

	select {
	case s.resultCh <- result:
	default:
	}

	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
