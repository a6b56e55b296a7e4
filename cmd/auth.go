package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/events"
	"launchpad/pkg/auth"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your launchpad session",
	Long: `Manage the single sign-on session used by every launchpad command.

Examples:
  launchpad auth login      # Sign in with the system browser
  launchpad auth status     # Show the current session
  launchpad auth refresh    # Refresh the access token now
  launchpad auth logout     # End the session`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Long: `End the session at the identity provider and remove the stored tokens.

The local session is always removed, even when the identity provider cannot
be reached.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token now",
	Long: `Run a refresh grant immediately, regardless of how long the current access
token remains valid.`,
	RunE: runAuthRefresh,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		if !a.store.Current().Authorized && a.store.Current().IDToken == "" {
			a.store.Clear()
			say(cmd, "%s\n", cli.FormatSuccess("Not signed in."))
			return nil
		}

		if err := a.session.Logout(cmd.Context()); err != nil {
			say(cmd, "%s\n", cli.FormatWarning(err.Error()))
		}
		say(cmd, "%s\n", cli.FormatSuccess("Signed out."))
		return nil
	})
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		current := a.store.Current()
		if !current.Authorized {
			return &cli.AuthRequiredError{Endpoint: a.cfg.BackendURL}
		}

		res := a.engine.Refresh(cmd.Context(), current)
		if !res.Success {
			var texErr *auth.TokenExchangeError
			switch {
			case errors.Is(res.Err, auth.ErrRefreshImpossible):
				a.session.Expire(events.SessionExpired{Reason: events.ReasonRefreshImpossible, At: now()})
			case errors.As(res.Err, &texErr):
				a.session.Expire(events.SessionExpired{Reason: events.ReasonRefreshFailed, Challenge: texErr.Code, At: now()})
			}
			return res.Err
		}
		say(cmd, "%s\n", cli.FormatSuccess("Access token refreshed, expires "+formatRemaining(res.State.ExpiresIn(now()))))
		return nil
	})
}
