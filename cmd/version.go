package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionBackend bool

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of launchpad",
		Long:  `Print the version of this launchpad CLI and, with --backend, of the backend it talks to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "launchpad version %s\n", rootCmd.Version)
			if !versionBackend {
				return nil
			}
			return withApplication(cmd, func(a *application) error {
				info, err := a.api.Info(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backend %s version %s\n", a.cfg.BackendURL, info.Build.Version)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&versionBackend, "backend", false, "Also query the backend version")
	return cmd
}
