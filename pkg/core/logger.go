package core

import "github.com/threatcanvas/sdk/pkg/shared/logging"

// The logger implementation lives in pkg/shared/logging so leaf packages
// (pkg/threats) can use it without importing core, which would cycle. The
// aliases below keep the original core.* names as identical types.

// Logger is the logging interface used across the SDK.
// Implement it to plug in a custom logger (logrus, zap, slog).
type Logger = logging.Logger

// LogLevel represents the logging level.
type LogLevel = logging.LogLevel

const (
	LogLevelDebug  = logging.LogLevelDebug
	LogLevelInfo   = logging.LogLevelInfo
	LogLevelWarn   = logging.LogLevelWarn
	LogLevelError  = logging.LogLevelError
	LogLevelSilent = logging.LogLevelSilent
)

// DefaultLogger is the standard-library backed logger.
type DefaultLogger = logging.DefaultLogger

// NewDefaultLogger creates a new default logger writing to stderr.
func NewDefaultLogger(prefix string, level LogLevel) *DefaultLogger {
	return logging.NewDefaultLogger(prefix, level)
}

// NopLogger is a no-op logger that discards all messages.
type NopLogger = logging.NopLogger

// PrintfLogger writes every message to stdout via fmt.Printf. Used for
// verbose CLI runs.
type PrintfLogger = logging.PrintfLogger

// NewPrintfLogger creates a new printf logger.
func NewPrintfLogger(prefix string) *PrintfLogger {
	return logging.NewPrintfLogger(prefix)
}

// LoggerFromVerbose returns a PrintfLogger when verbose is set, otherwise a
// NopLogger.
func LoggerFromVerbose(prefix string, verbose bool) Logger {
	return logging.LoggerFromVerbose(prefix, verbose)
}
