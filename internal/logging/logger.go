// Package logging provides level-based logging for asp.
// All output goes to stderr so stdout stays reserved for command results
// (human-readable or --json) — the harness adapters need the same
// separation for their own subprocess stdio, and this package gives every
// asp component the same guarantee.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger is a leveled wrapper around the standard logger.
type Logger struct {
	debugEnabled bool
	infoLogger   *log.Logger
	warnLogger   *log.Logger
	errorLogger  *log.Logger
	debugLogger  *log.Logger
}

var globalLogger *Logger

// Initialize sets up the global logger with debug mode setting.
func Initialize(debugMode bool) {
	var output io.Writer = os.Stderr

	globalLogger = &Logger{
		debugEnabled: debugMode,
		infoLogger:   log.New(output, "", log.LstdFlags),
		warnLogger:   log.New(output, "", log.LstdFlags),
		errorLogger:  log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

func ensure() {
	if globalLogger == nil {
		Initialize(os.Getenv("ASP_DEBUG") == "1")
	}
}

// Info logs informational messages (always shown).
func Info(format string, args ...interface{}) {
	ensure()
	globalLogger.infoLogger.Printf(format, args...)
}

// Warn logs warning messages (always shown).
func Warn(format string, args ...interface{}) {
	ensure()
	globalLogger.warnLogger.Printf("WARN: "+format, args...)
}

// Debug logs debug messages (only shown when debug mode is enabled).
func Debug(format string, args ...interface{}) {
	ensure()
	if globalLogger.debugEnabled {
		globalLogger.debugLogger.Printf("DEBUG: "+format, args...)
	}
}

// Error logs error messages (always shown).
func Error(format string, args ...interface{}) {
	ensure()
	globalLogger.errorLogger.Printf("ERROR: "+format, args...)
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	ensure()
	return globalLogger.debugEnabled
}
