package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"launchpad/internal/cli"
)

var adminFile string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative operations (requires the admin role)",
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List dashboard users",
	Args:  cobra.NoArgs,
	RunE:  runAdminUsers,
}

var adminExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export applications and categories as JSON",
	Long: `Export all applications and categories as a JSON document.

Examples:
  launchpad admin export > launchpad.json
  launchpad admin export --file launchpad.json`,
	Args: cobra.NoArgs,
	RunE: runAdminExport,
}

var adminImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import applications and categories from a JSON export",
	Args:  cobra.NoArgs,
	RunE:  runAdminImport,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminUsersCmd, adminExportCmd, adminImportCmd)

	addOutputFlags(adminUsersCmd)
	adminExportCmd.Flags().StringVarP(&adminFile, "file", "f", "", "Write to this file instead of stdout")
	adminImportCmd.Flags().StringVarP(&adminFile, "file", "f", "", "Export document to import ('-' for stdin)")
	_ = adminImportCmd.MarkFlagRequired("file")
}

func runAdminUsers(cmd *cobra.Command, args []string) error {
	p, err := printer(cmd)
	if err != nil {
		return err
	}

	return withApplication(cmd, func(a *application) error {
		users, err := a.api.Users(cmd.Context())
		if err != nil {
			return err
		}
		t := cli.Table{Headers: []string{"Username", "Email", "Roles"}}
		for _, u := range users {
			t.Rows = append(t.Rows, []string{u.Username, u.Email, strings.Join(u.Roles, ",")})
		}
		return p.Print(t, users)
	})
}

func runAdminExport(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		var w io.Writer = cmd.OutOrStdout()
		if adminFile != "" && adminFile != "-" {
			f, err := os.OpenFile(adminFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := a.api.Export(cmd.Context(), w); err != nil {
			return err
		}
		if adminFile != "" && adminFile != "-" {
			say(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Exported to %s", adminFile)))
		}
		return nil
	})
}

func runAdminImport(cmd *cobra.Command, args []string) error {
	return withApplication(cmd, func(a *application) error {
		var r io.Reader = cmd.InOrStdin()
		if adminFile != "-" {
			f, err := os.Open(adminFile)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		if err := a.api.Import(cmd.Context(), r); err != nil {
			return err
		}
		say(cmd, "%s\n", cli.FormatSuccess("Import completed"))
		return nil
	})
}
