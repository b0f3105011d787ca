// Package logger bridges structured loggers to APIs that still expect a *log.Logger.
package logger

import (
	"log"
	"log/slog"
)

// New returns a *log.Logger whose output is emitted by base at the given
// level, tagged with component. A nil base uses slog.Default().
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}
