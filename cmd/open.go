package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/client"
)

var openDirect bool

var openCmd = &cobra.Command{
	Use:   "open [APPLICATION|URL]",
	Short: "Open an application in your browser",
	Long: `Open a bookmarked application, or any URL, in your regular browser.

Isolated applications and URLs are opened through the session bridge: a
one-time ticket is minted for your session and the browser visits the
backend, which signs it in and forwards it to the target. Use --direct to
skip the bridge.

Without an argument an interactive prompt with tab completion is shown.

Examples:
  launchpad open Grafana
  launchpad open https://grafana.example.com/d/abc
  launchpad open https://docs.example.com --direct`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().BoolVar(&openDirect, "direct", false, "Open without the session bridge")
}

// target is what open resolved its argument to.
type target struct {
	Name     string
	URL      string
	Isolated bool
}

func runOpen(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		ctx := cmd.Context()

		var query string
		if len(args) == 1 {
			query = args[0]
		}

		var apps []client.Application
		if query == "" || !isURL(query) {
			var err error
			if apps, err = a.api.Applications(ctx); err != nil {
				return err
			}
		}
		if query == "" {
			var err error
			if query, err = pickApplication(cmd, apps); err != nil {
				return err
			}
		}

		t, err := resolveTarget(query, apps)
		if err != nil {
			return err
		}

		if openDirect || !t.Isolated {
			say(cmd, "Opening %s\n", t.Name)
			return a.launcher.Open(ctx, t.URL)
		}

		a.bridge.PreWarm(ctx, a.cfg.BackendURL)
		err = cli.Progress(cmd.ErrOrStderr(), quiet, "Opening "+t.Name+" through the session bridge...", func() error {
			return a.bridge.Open(ctx, t.URL)
		})
		if err == nil {
			return nil
		}
		switch cli.Classify(err, a.cfg.BackendURL).(type) {
		case *cli.AuthRequiredError, *cli.AuthExpiredError, *cli.AuthFailedError:
			return err
		}
		return &cli.BridgeError{Target: t.URL, Reason: err}
	})
}

func isURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// resolveTarget maps a URL or an application name onto a target. Names match
// case-insensitively, first exactly and then by unique prefix. URLs always
// use the bridge.
func resolveTarget(query string, apps []client.Application) (target, error) {
	if isURL(query) {
		return target{Name: query, URL: query, Isolated: true}, nil
	}

	var prefixed []client.Application
	for _, app := range apps {
		if strings.EqualFold(app.Name, query) {
			return target{Name: app.Name, URL: app.URL, Isolated: app.Isolated}, nil
		}
		if strings.HasPrefix(strings.ToLower(app.Name), strings.ToLower(query)) {
			prefixed = append(prefixed, app)
		}
	}

	switch len(prefixed) {
	case 1:
		app := prefixed[0]
		return target{Name: app.Name, URL: app.URL, Isolated: app.Isolated}, nil
	case 0:
		return target{}, fmt.Errorf("no application named %q. Use 'launchpad apps list' to see them", query)
	default:
		names := make([]string, len(prefixed))
		for i, app := range prefixed {
			names[i] = app.Name
		}
		sort.Strings(names)
		return target{}, fmt.Errorf("%q matches several applications: %s", query, strings.Join(names, ", "))
	}
}

// pickApplication prompts for an application name with tab completion.
func pickApplication(cmd *cobra.Command, apps []client.Application) (string, error) {
	if len(apps) == 0 {
		return "", errors.New("no applications available")
	}

	items := make([]readline.PrefixCompleterInterface, len(apps))
	for i, app := range apps {
		items[i] = readline.PcItem(app.Name)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "open> ",
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return "", errors.New("cancelled")
	case err != nil:
		return "", err
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.New("no application selected")
	}
	return name, nil
}
