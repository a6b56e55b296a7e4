// Package browser opens URLs in the user's persistent system browser and
// warms up connections to URLs that are about to be opened.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"launchpad/pkg/logging"
)

// Launcher opens a URL for the user.
type Launcher interface {
	Open(ctx context.Context, url string) error
}

// startCommand is replaced in tests to avoid spawning a browser.
var startCommand = func(cmd *exec.Cmd) error {
	return cmd.Start()
}

// SystemLauncher opens URLs with the platform's default handler, which uses
// the user's regular browser profile and its cookies. It never requests a
// private or incognito window.
type SystemLauncher struct {
	// Command overrides the platform opener, e.g. "firefox". Arguments are
	// split on whitespace and the URL is appended.
	Command string
}

// Open starts the browser and returns without waiting for it.
func (l SystemLauncher) Open(ctx context.Context, url string) error {
	cmd, err := command(runtime.GOOS, l.Command, url)
	if err != nil {
		return err
	}
	logging.Debug("Browser", "Opening %s with %s", redactQuery(url), cmd.Path)
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func command(goos, override, url string) (*exec.Cmd, error) {
	if fields := strings.Fields(override); len(fields) > 0 {
		return exec.Command(fields[0], append(fields[1:], url)...), nil
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// redactQuery drops the query string, which may carry tickets or hints.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i] + "?..."
	}
	return url
}
