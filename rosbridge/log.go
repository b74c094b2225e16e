package rosbridge

import (
	"github.com/sirupsen/logrus"
)

// defaultLogger is used by a Session that wasn't given one via WithLogger.
var defaultLogger *logrus.Logger

// DefaultLogger returns the package-wide fallback logger, creating it on
// first use.
func DefaultLogger() *logrus.Logger {
	if defaultLogger == nil {
		defaultLogger = logrus.StandardLogger()
	}
	return defaultLogger
}

// NewLogger returns a fresh, independently configured logger, for callers
// that don't want to share the package-wide standard logger.
func NewLogger() *logrus.Logger {
	return logrus.New()
}

// moduleLog scopes a logger to a component name via a structured field,
// rather than a distinct logger type, so every log line a session emits
// carries the same formatter/output configuration the caller set up.
func moduleLog(base *logrus.Logger, module string) *logrus.Entry {
	return base.WithField("module", module)
}
