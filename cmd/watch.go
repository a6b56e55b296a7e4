package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"launchpad/internal/cli"
	"launchpad/internal/events"
	"launchpad/internal/session"
	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session fresh and report changes",
	Long: `Run in the foreground, refreshing the access token before it expires and
printing every session change, including sign-ins and sign-outs made by
other launchpad processes.

When started by systemd the command reports readiness and, if configured,
watchdog keep-alives.

Examples:
  launchpad watch
  launchpad watch --interval 30s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "How often to check the access token")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	return withApplication(cmd, func(a *application) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		changes, unsubscribe := a.session.Subscribe(8)
		defer unsubscribe()

		if err := a.store.Watch(ctx, func(auth.AuthState) { a.session.Sync() }); err != nil {
			logging.Warn("Watch", "Not following changes from other processes: %v", err)
		}
		go a.session.Run(ctx, a.bus)

		fmt.Fprintf(cmd.OutOrStdout(), "%s session is %s. Press Ctrl+C to stop.\n", stamp(), a.session.Phase())
		notifySystemd(daemon.SdNotifyReady)
		defer notifySystemd(daemon.SdNotifyStopping)

		keepFresh(ctx, cmd, a)

		ticker := time.NewTicker(watchTick(watchInterval))
		defer ticker.Stop()
		lastCheck := now()

		for {
			select {
			case <-ctx.Done():
				return nil
			case change, ok := <-changes:
				if !ok {
					return nil
				}
				printChange(cmd, change)
			case <-ticker.C:
				notifySystemd(daemon.SdNotifyWatchdog)
				if now().Sub(lastCheck) >= watchInterval {
					lastCheck = now()
					keepFresh(ctx, cmd, a)
				}
			}
		}
	})
}

// keepFresh refreshes the access token when it is close to expiry. A refresh
// the provider rejects ends the session; transient failures are retried on
// the next tick.
func keepFresh(ctx context.Context, cmd *cobra.Command, a *application) {
	if !a.store.Current().Authorized {
		return
	}
	_, err := a.gate.EnsureFreshToken(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}

	var (
		texErr *auth.TokenExchangeError
		endErr *auth.TokenEndpointError
	)
	switch {
	case errors.Is(err, auth.ErrRefreshImpossible):
		a.session.Expire(events.SessionExpired{Reason: events.ReasonRefreshImpossible, At: now()})
	case errors.As(err, &texErr):
		a.session.Expire(events.SessionExpired{Reason: events.ReasonRefreshFailed, Challenge: texErr.Code, At: now()})
	case errors.As(err, &endErr):
		// The next attempt rediscovers the provider and its token endpoint.
		a.engine.ForgetProvider()
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", stamp(), cli.FormatWarning("token endpoint unavailable, will retry: "+err.Error()))
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", stamp(), cli.FormatWarning("refresh failed, will retry: "+err.Error()))
	}
}

func printChange(cmd *cobra.Command, c session.PhaseChange) {
	msg := fmt.Sprintf("%s -> %s (%s)", c.From, c.To, c.Cause)
	switch c.To {
	case session.PhaseAuthenticated:
		msg = cli.FormatSuccess(msg)
	case session.PhaseLoggedOut:
		msg = cli.FormatWarning(msg)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", stamp(), msg)
}

// watchTick is the ticker period: the check interval, or half the systemd
// watchdog timeout if that is shorter.
func watchTick(interval time.Duration) time.Duration {
	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil || wd == 0 {
		return interval
	}
	if half := wd / 2; half < interval {
		return half
	}
	return interval
}

func notifySystemd(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("Watch", "sd_notify %q failed: %v", state, err)
	}
}

func stamp() string {
	return now().Format("15:04:05")
}
