package logging

import (
	"log/slog"
	"strings"
)

// LevelTrace is the server log level that logs at DEBUG and also turns on Trace.
const LevelTrace = "TRACE"

// EnableTrace gates Trace output. Init sets it from the server log level.
var EnableTrace = false

// Trace logs per-sample detail at DEBUG, but only while EnableTrace is set.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}

// TraceDefault is Trace on the default logger.
func TraceDefault(msg string, args ...any) {
	Trace(slog.Default(), msg, args...)
}

func isTrace(level string) bool {
	return strings.EqualFold(strings.TrimSpace(level), LevelTrace)
}
