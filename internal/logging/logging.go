// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// EnvVar overrides the configured log level when set.
const EnvVar = "VLC_CONTROL_LOG"

// Setup configures the standard logger: text output with full timestamps
// to stderr at the given level. The VLC_CONTROL_LOG environment variable
// takes precedence over the level argument.
func Setup(level string) error {
	if env := os.Getenv(EnvVar); env != "" {
		level = env
	}

	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}

	logrus.SetLevel(parsed)
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// ParseLevel maps a level name to a logrus level. "warn" and "warning"
// are both accepted; matching is case-insensitive via logrus.
func ParseLevel(level string) (logrus.Level, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q (use error, warn, info, debug or trace)", level)
	}
	return parsed, nil
}
