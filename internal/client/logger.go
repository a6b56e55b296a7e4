package client

import (
	"fmt"
	"strings"

	"launchpad/pkg/logging"
)

// leveledLogger routes retryablehttp's logs into the launchpad logger.
type leveledLogger struct{}

func format(msg string, kv []interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

func (leveledLogger) Error(msg string, kv ...interface{}) {
	logging.Error("Client", nil, "%s", format(msg, kv))
}

func (leveledLogger) Info(msg string, kv ...interface{}) {
	logging.Debug("Client", "%s", format(msg, kv))
}

func (leveledLogger) Debug(msg string, kv ...interface{}) {
	logging.Debug("Client", "%s", format(msg, kv))
}

func (leveledLogger) Warn(msg string, kv ...interface{}) {
	logging.Warn("Client", "%s", format(msg, kv))
}
