package config

import "time"

const (
	// DefaultClientID is the public client registered for the CLI.
	DefaultClientID = "launchpad-cli"

	// DefaultRedirectURI is where the loopback callback server listens.
	DefaultRedirectURI = "http://127.0.0.1:8765/callback"
)

// GetDefaultConfig returns the built-in defaults. dataDir is used for DataDir.
func GetDefaultConfig(dataDir string) Config {
	return Config{
		ClientID:           DefaultClientID,
		RedirectURI:        DefaultRedirectURI,
		DataDir:            dataDir,
		HTTPTimeout:        30 * time.Second,
		RefreshWaitTimeout: 20 * time.Second,
		LogLevel:           "warn",
	}
}
