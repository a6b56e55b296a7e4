// Package config loads and saves the launchpad CLI configuration.
//
// Configuration lives in a single directory, ~/.config/launchpad by default,
// overridable with the --config-path flag:
//
//	~/.config/launchpad/
//	├── config.yaml   # main configuration file
//	└── .env          # optional LAUNCHPAD_* variables
//
// Values are resolved in this order, later sources winning:
//
//  1. Built-in defaults
//  2. config.yaml
//  3. LAUNCHPAD_* environment variables (a .env file in the configuration
//     directory is loaded first and never overrides variables already set)
//
// A minimal config.yaml:
//
//	backendURL: https://launchpad.example.com
//	clientID: launchpad-cli
//
// The OIDC issuer is normally taken from the backend's /actuator/info
// endpoint. Set issuerURL to bypass that lookup.
package config
