// Package logging builds the CLI logger. The level comes from the --log-level
// flag, then PESCAN_LOG_LEVEL, and defaults to warn so scan output stays
// clean.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	EnvLevel      = "PESCAN_LOG_LEVEL"
	defaultPrefix = "pescan"
)

// ParseLevel maps debug, info, warn and error to a log level. Anything else
// is warn.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.WarnLevel
	}
}

// New creates a logger writing to w. An empty level falls back to the
// environment.
func New(w io.Writer, level string) *log.Logger {
	if level == "" {
		level = os.Getenv(EnvLevel)
	}

	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          defaultPrefix,
	})
	lg.SetLevel(ParseLevel(level))
	return lg
}
