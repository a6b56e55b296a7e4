package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/client"
	"launchpad/internal/oidc"
	"launchpad/pkg/auth"
	pkgstrings "launchpad/pkg/strings"
)

var statusVerify bool

// now is replaced in tests.
var now = time.Now

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Long: `Show whether you are signed in, who as, and when the access token expires.

With --verify the session is also checked against the backend, which
refreshes the access token if needed.

Examples:
  launchpad auth status
  launchpad auth status --verify
  launchpad auth status -o json`,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVar(&statusVerify, "verify", false, "Verify the session with the backend")
	addOutputFlags(authStatusCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	p, err := printer(cmd)
	if err != nil {
		return err
	}

	return withApplication(cmd, func(a *application) error {
		if statusVerify && a.store.Current().Authorized {
			if _, err := a.api.Applications(cmd.Context()); err != nil {
				var se *client.StatusError
				if !errors.As(err, &se) || !se.Unauthorized() {
					return err
				}
				a.applyExpiry()
			}
		}

		state := a.store.Current()
		resp := auth.NewStatusResponse(state, a.session.Sync().String(), now())
		if id, err := oidc.IdentityFromIDToken(state.IDToken); err == nil {
			resp.Subject = id.DisplayName()
			resp.Email = id.Email
			resp.Issuer = id.Issuer
		}

		if p.Format != cli.OutputFormatTable {
			return p.Print(cli.Table{}, resp)
		}
		printStatus(cmd, a.cfg.BackendURL, resp)
		return nil
	})
}

func printStatus(cmd *cobra.Command, backend string, resp auth.StatusResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Launchpad")
	fmt.Fprintf(out, "  Backend:   %s\n", backend)

	if !resp.Authenticated {
		fmt.Fprintf(out, "  Status:    %s\n", text.FgYellow.Sprint("Not signed in"))
		if resp.LastError != nil {
			fmt.Fprintf(out, "  Reason:    %s\n", describeRecord(resp.LastError))
		}
		fmt.Fprintln(out, "             Run: launchpad auth login")
		return
	}

	fmt.Fprintf(out, "  Status:    %s\n", text.FgGreen.Sprint("Signed in"))
	if resp.Subject != "" {
		fmt.Fprintf(out, "  User:      %s\n", resp.Subject)
	}
	if resp.Issuer != "" {
		fmt.Fprintf(out, "  Issuer:    %s\n", resp.Issuer)
	}
	if resp.ExpiresAt != nil {
		remaining := resp.ExpiresAt.Sub(now())
		expiry := fmt.Sprintf("%s (%s)", resp.ExpiresAt.Local().Format(time.RFC3339), formatRemaining(remaining))
		if remaining <= 0 {
			expiry = text.FgYellow.Sprint(expiry)
		}
		fmt.Fprintf(out, "  Expires:   %s\n", expiry)
	}
	refresh := "no"
	if resp.CanRefresh {
		refresh = "yes"
	}
	fmt.Fprintf(out, "  Refresh:   %s\n", refresh)
}

func describeRecord(r *auth.ErrorRecord) string {
	if r.Description != "" {
		return fmt.Sprintf("%s: %s (%s)", r.Type, r.Code, pkgstrings.Truncate(r.Description, pkgstrings.DefaultCellWidth))
	}
	return fmt.Sprintf("%s: %s", r.Type, r.Code)
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	return "in " + d.Round(time.Second).String()
}
