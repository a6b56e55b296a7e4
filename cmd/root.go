package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/config"
	"launchpad/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no session or it can no longer be refreshed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the login flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeBridgeFailed indicates an isolated application could not be opened.
	ExitCodeBridgeFailed = 4
)

var (
	configPath string
	debug      bool
	quiet      bool
	logFormat  string
)

// rootCmd represents the base command for the launchpad application.
var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Sign in to the launchpad dashboard and open its applications",
	Long: `launchpad signs you in to the launchpad dashboard with your organisation's
single sign-on, lists the applications bookmarked there and opens them in
your regular browser. Applications that run isolated from the dashboard are
opened through a one-time session bridge so you stay signed in.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging(cmd, "")
	},
}

// initLogging configures logging from the flags, falling back to the
// configured level when --debug is not set.
func initLogging(cmd *cobra.Command, configured string) {
	level := logging.LevelWarn
	if configured != "" {
		level = logging.ParseLevel(configured)
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(logFormat), cmd.ErrOrStderr())
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application. It is called by
// main.main() and exits the process with a code from getExitCode on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "launchpad version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var (
		authRequired *cli.AuthRequiredError
		authExpired  *cli.AuthExpiredError
		authFailed   *cli.AuthFailedError
		bridgeFailed *cli.BridgeError
	)
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.As(err, &authRequired), errors.As(err, &authExpired):
		return ExitCodeAuthRequired
	case errors.As(err, &authFailed):
		return ExitCodeAuthFailed
	case errors.As(err, &bridgeFailed):
		return ExitCodeBridgeFailed
	default:
		return ExitCodeError
	}
}

func defaultConfigPath() string {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return ".launchpad"
	}
	return dir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", defaultConfigPath(), "Configuration directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logging.FormatText), "Log format (text, json)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
