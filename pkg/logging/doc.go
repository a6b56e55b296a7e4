// Package logging provides subsystem-tagged structured logging for launchpad.
//
// It wraps zerolog behind a small package-level API so that callers never hold
// a logger instance:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("TokenStore", "loaded session from %s", path)
//	logging.Error("Gate", err, "refresh failed")
//
// Security relevant events go through Audit, which emits a SECURITY_AUDIT
// line with the given key/value fields. Token values must never be passed to
// any logging call; use oauth.RedactedToken when a token needs to appear in a
// formatted value.
//
// Until Init is called the logger writes warnings and errors to stderr.
package logging
