package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := GetDefaultConfig("/tmp/launchpad")
	cfg.BackendURL = "https://launchpad.example.com"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantFields []string
	}{
		{"valid", func(*Config) {}, nil},
		{"missing backend", func(c *Config) { c.BackendURL = "" }, []string{"backendURL"}},
		{"relative backend", func(c *Config) { c.BackendURL = "launchpad" }, []string{"backendURL"}},
		{"bad issuer", func(c *Config) { c.IssuerURL = "not a url" }, []string{"issuerURL"}},
		{"https redirect", func(c *Config) { c.RedirectURI = "https://127.0.0.1/cb" }, []string{"redirectURI"}},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, []string{"logLevel"}},
		{"empty scope", func(c *Config) { c.Scopes = []string{"openid", ""} }, []string{"scopes[1]"}},
		{"two problems", func(c *Config) { c.BackendURL = ""; c.ClientID = "" }, []string{"backendURL", "clientID"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			var fields []string
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("backendURL", "is required")
	assert.Equal(t, "field 'backendURL': is required", errs.Error())

	errs.Add("clientID", "is required")
	assert.Contains(t, errs.Error(), "validation failed:")
}
