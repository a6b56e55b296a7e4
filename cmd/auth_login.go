package cmd

import (
	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/oidc"
)

var loginForce bool

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the system browser",
	Long: `Sign in using the OpenID Connect authorization code flow with PKCE.

Your regular browser opens the identity provider's sign-in page. After you
sign in, the browser is redirected to a short-lived listener on this machine
and the session is stored encrypted under the data directory.

Examples:
  launchpad auth login            # Sign in unless already signed in
  launchpad auth login --force    # Sign in again`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginForce, "force", false, "Sign in even if a session exists")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		if a.store.Current().Authorized && !loginForce {
			say(cmd, "%s\n", cli.FormatSuccess("Already signed in. Use --force to sign in again."))
			return nil
		}

		state, err := a.session.Login(cmd.Context())
		if err != nil {
			return err
		}

		name := "unknown user"
		if id, err := oidc.IdentityFromIDToken(state.IDToken); err == nil {
			name = id.DisplayName()
		}
		say(cmd, "%s\n", cli.FormatSuccess("Signed in as "+name))
		return nil
	})
}
