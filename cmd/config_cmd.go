package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the configuration",
	Long: `Show and edit config.yaml in the configuration directory.

Examples:
  launchpad config set backendURL https://launchpad.example.com
  launchpad config show
  launchpad config path`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path of config.yaml",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.FilePath(configPath))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	configShowCmd.Flags().StringVarP(&outputFormat, "output", "o", string(cli.OutputFormatYAML), "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if outputFormat == string(cli.OutputFormatTable) || outputFormat == string(cli.OutputFormatTemplate) {
		return fmt.Errorf("unsupported output format for config: %q (valid: yaml, json)", outputFormat)
	}
	p, err := printer(cmd)
	if err != nil {
		return err
	}
	if err := p.Print(cli.Table{}, cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning(err.Error()))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	// Start from the file alone so environment overrides are not persisted.
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := config.Set(&cfg, args[0], args[1]); err != nil {
		return err
	}
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return err
	}
	say(cmd, "%s\n", cli.FormatSuccess(fmt.Sprintf("Set %s in %s", args[0], config.FilePath(configPath))))
	return nil
}
