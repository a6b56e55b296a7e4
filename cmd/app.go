package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"launchpad/internal/bridge"
	"launchpad/internal/browser"
	"launchpad/internal/cli"
	"launchpad/internal/client"
	"launchpad/internal/config"
	"launchpad/internal/events"
	"launchpad/internal/gate"
	"launchpad/internal/oidc"
	"launchpad/internal/session"
	"launchpad/internal/tokenstore"
)

// application wires the auth stack for one command invocation.
type application struct {
	cfg      config.Config
	store    *tokenstore.Store
	bus      *events.Bus
	engine   *oidc.Engine
	gate     *gate.Gate
	api      *client.Client
	launcher browser.Launcher
	bridge   *bridge.Bridge
	session  *session.Manager

	expired     <-chan events.SessionExpired
	unsubscribe func()
}

// newApplication is replaced in tests.
var newApplication = func(cmd *cobra.Command) (*application, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildApplication(cfg, browser.SystemLauncher{Command: cfg.Browser}, cmd.ErrOrStderr())
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}
	initLogging(cmd, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration in %s: %w", config.FilePath(configPath), err)
	}
	return cfg, nil
}

func buildApplication(cfg config.Config, launcher browser.Launcher, out io.Writer, opts ...session.Option) (*application, error) {
	store := tokenstore.NewFileStore(cfg.DataDir)
	bus := events.NewBus()

	var issuers oidc.IssuerSource
	if cfg.IssuerURL != "" {
		issuers = oidc.StaticIssuer(cfg.IssuerURL)
	} else {
		// Issuer lookup must not go through the gate, which may itself need
		// the issuer to refresh.
		plain, err := client.New(cfg.BackendURL, nil, client.WithTimeout(cfg.HTTPTimeout))
		if err != nil {
			return nil, err
		}
		issuers = client.IssuerSource{Client: plain}
	}

	engine := oidc.NewEngine(oidc.Config{
		ClientID:              cfg.ClientID,
		RedirectURI:           cfg.RedirectURI,
		PostLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		Scopes:                cfg.Scopes,
		HTTPClient:            &http.Client{Timeout: cfg.HTTPTimeout},
	}, issuers, store)

	gateOpts := []gate.Option{}
	if cfg.RefreshWaitTimeout > 0 {
		gateOpts = append(gateOpts, gate.WithWaitTimeout(cfg.RefreshWaitTimeout))
	}
	g := gate.New(store, engine, bus, gateOpts...)

	api, err := client.New(cfg.BackendURL, g, client.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return nil, err
	}

	sessionOpts := append([]session.Option{
		session.WithAuthURLHandler(func(u string) {
			if !quiet {
				fmt.Fprintf(out, "Opening your browser to sign in. If it does not open, visit:\n\n  %s\n\n", u)
			}
		}),
	}, opts...)

	a := &application{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		engine:   engine,
		gate:     g,
		api:      api,
		launcher: launcher,
		bridge:   bridge.New(g, api, launcher, browser.HTTPWarmer{Client: &http.Client{Timeout: cfg.HTTPTimeout}}),
		session:  session.NewManager(store, engine, launcher, sessionOpts...),
	}
	a.expired, a.unsubscribe = bus.Subscribe(events.DefaultBufferSize)
	return a, nil
}

// applyExpiry marks the session expired for every expiry event raised so
// far.
func (a *application) applyExpiry() {
	for {
		select {
		case ev := <-a.expired:
			a.session.Expire(ev)
		default:
			return
		}
	}
}

// close applies pending expiry events so a rejected session is recorded
// before the process exits.
func (a *application) close() {
	a.applyExpiry()
	a.unsubscribe()
}

// withApplication builds the application, runs fn and maps its error onto
// the CLI error types.
func withApplication(cmd *cobra.Command, fn func(a *application) error) error {
	a, err := newApplication(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return cli.Classify(fn(a), a.cfg.BackendURL)
}

// printer returns a printer for the output flags of cmd.
func printer(cmd *cobra.Command) (cli.Printer, error) {
	if err := cli.ValidateOutputFormat(outputFormat); err != nil {
		return cli.Printer{}, err
	}
	return cli.Printer{
		Out:       cmd.OutOrStdout(),
		Format:    cli.OutputFormat(outputFormat),
		NoHeaders: noHeaders,
		Template:  outputTemplate,
	}, nil
}

var (
	outputFormat   string
	outputTemplate string
	noHeaders      bool
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", string(cli.OutputFormatTable), "Output format (table, json, yaml, template)")
	cmd.Flags().StringVar(&outputTemplate, "template", "", "Go template for -o template; sprig functions are available")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
}

// say prints progress output unless --quiet is set.
func say(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}
