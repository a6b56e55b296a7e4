package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"launchpad/pkg/logging"
)

const (
	userConfigDir  = ".config/launchpad"
	configFileName = "config.yaml"
	envFileName    = ".env"
)

// Environment variables that override config.yaml.
const (
	EnvBackendURL  = "LAUNCHPAD_BACKEND_URL"
	EnvIssuerURL   = "LAUNCHPAD_ISSUER_URL"
	EnvClientID    = "LAUNCHPAD_CLIENT_ID"
	EnvRedirectURI = "LAUNCHPAD_REDIRECT_URI"
	EnvDataDir     = "LAUNCHPAD_DATA_DIR"
	EnvBrowser     = "LAUNCHPAD_BROWSER"
	EnvLogLevel    = "LAUNCHPAD_LOG_LEVEL"
)

var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/launchpad.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// FilePath returns the config.yaml path inside configPath.
func FilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads configuration from configPath: defaults, then
// config.yaml, then LAUNCHPAD_* variables. A missing config.yaml is not an
// error. The result is not validated; call Validate before use.
func LoadConfig(configPath string) (Config, error) {
	envFile := filepath.Join(configPath, envFileName)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigurationError{
			FilePath:  envFile,
			ErrorType: "parse",
			Message:   "failed to load environment file",
			Err:       err,
		}
	}

	config, err := LoadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	applyEnv(&config)
	return config, nil
}

// LoadFile loads defaults and config.yaml only, ignoring the environment.
func LoadFile(configPath string) (Config, error) {
	config := GetDefaultConfig(configPath)

	configFilePath := FilePath(configPath)
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
		return config, nil
	case err != nil:
		return Config{}, &ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "io",
			Message:   "failed to read configuration",
			Err:       err,
		}
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, &ConfigurationError{
			FilePath:    configFilePath,
			ErrorType:   "parse",
			Message:     "malformed YAML",
			Details:     err.Error(),
			Suggestions: []string{"Check indentation and quoting", "Durations use Go syntax, e.g. 30s or 2m"},
			Err:         err,
		}
	}
	logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func applyEnv(c *Config) {
	overrides := []struct {
		name   string
		target *string
	}{
		{EnvBackendURL, &c.BackendURL},
		{EnvIssuerURL, &c.IssuerURL},
		{EnvClientID, &c.ClientID},
		{EnvRedirectURI, &c.RedirectURI},
		{EnvDataDir, &c.DataDir},
		{EnvBrowser, &c.Browser},
		{EnvLogLevel, &c.LogLevel},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			*o.target = v
		}
	}
}

// SaveConfig writes cfg to config.yaml in configPath, replacing it
// atomically.
func SaveConfig(configPath string, cfg Config) error {
	path := FilePath(configPath)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := os.MkdirAll(configPath, 0o700); err != nil {
		return &ConfigurationError{FilePath: path, ErrorType: "io", Message: "failed to create configuration directory", Err: err}
	}
	tmp, err := os.CreateTemp(configPath, ".config-*.yaml")
	if err != nil {
		return &ConfigurationError{FilePath: path, ErrorType: "io", Message: "failed to write configuration", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &ConfigurationError{FilePath: path, ErrorType: "io", Message: "failed to write configuration", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ConfigurationError{FilePath: path, ErrorType: "io", Message: "failed to write configuration", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &ConfigurationError{FilePath: path, ErrorType: "io", Message: "failed to replace configuration", Err: err}
	}

	logging.Info("ConfigLoader", "Saved configuration to %s", path)
	return nil
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	return []string{
		"backendURL", "issuerURL", "clientID", "redirectURI", "postLogoutRedirectURI",
		"scopes", "dataDir", "httpTimeout", "refreshWaitTimeout", "browser", "logLevel",
	}
}

// Set assigns value to the field named by its yaml key. Scopes are space or
// comma separated.
func Set(c *Config, key, value string) error {
	switch key {
	case "backendURL":
		c.BackendURL = value
	case "issuerURL":
		c.IssuerURL = value
	case "clientID":
		c.ClientID = value
	case "redirectURI":
		c.RedirectURI = value
	case "postLogoutRedirectURI":
		c.PostLogoutRedirectURI = value
	case "scopes":
		c.Scopes = strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	case "dataDir":
		c.DataDir = value
	case "httpTimeout", "refreshWaitTimeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return ValidationError{Field: key, Value: value, Message: "must be a duration such as 30s"}
		}
		if key == "httpTimeout" {
			c.HTTPTimeout = d
		} else {
			c.RefreshWaitTimeout = d
		}
	case "browser":
		c.Browser = value
	case "logLevel":
		c.LogLevel = value
	default:
		return ValidationError{Field: key, Value: value, Message: fmt.Sprintf("unknown key, expected one of: %s", strings.Join(Keys(), ", "))}
	}
	return nil
}
