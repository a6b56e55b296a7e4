package config

import "time"

// Config is the top-level configuration of the launchpad CLI.
type Config struct {
	// BackendURL is the launchpad backend origin.
	BackendURL string `json:"backendURL" yaml:"backendURL" validate:"required,url"`
	// IssuerURL overrides the issuer advertised by the backend.
	IssuerURL string `json:"issuerURL,omitempty" yaml:"issuerURL,omitempty" validate:"omitempty,url"`
	ClientID  string `json:"clientID" yaml:"clientID" validate:"required"`
	// RedirectURI must be a loopback http URL; the CLI listens on it during login.
	RedirectURI           string   `json:"redirectURI" yaml:"redirectURI" validate:"required,url"`
	PostLogoutRedirectURI string   `json:"postLogoutRedirectURI,omitempty" yaml:"postLogoutRedirectURI,omitempty" validate:"omitempty,url"`
	Scopes                []string `json:"scopes,omitempty" yaml:"scopes,omitempty" validate:"dive,required"`

	// DataDir holds the sealed session and its key.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty" validate:"required"`

	HTTPTimeout        time.Duration `json:"httpTimeout,omitempty" yaml:"httpTimeout,omitempty" validate:"gte=0"`
	RefreshWaitTimeout time.Duration `json:"refreshWaitTimeout,omitempty" yaml:"refreshWaitTimeout,omitempty" validate:"gte=0"`

	// Browser is a command used instead of the platform default.
	Browser  string `json:"browser,omitempty" yaml:"browser,omitempty"`
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
}
