package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// logging levels
const (
	TRACE = "TRACE"
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

// LogLevel defines the current logging level (default is INFO)
var LogLevel = INFO

var logger = hclog.New(&hclog.LoggerOptions{
	Name:   "monsink",
	Level:  hclog.Info,
	Output: os.Stdout,
})

// SetLogLevel sets the log level for filtering logs
func SetLogLevel(logLevel string) {
	level := hclog.LevelFromString(logLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	LogLevel = strings.ToUpper(level.String())
	logger.SetLevel(level)
}

// Named returns a sub-logger for a component, e.g. to hand it to libraries that log key/value pairs.
func Named(name string) hclog.Logger {
	return logger.Named(name)
}

// Log writes a log message at a specified level, formatted with optional arguments
func Log(level, message string, a ...any) {
	msg := strings.TrimRight(fmt.Sprintf(message, a...), "\n ")
	switch level {
	case TRACE:
		logger.Trace(msg)
	case DEBUG:
		logger.Debug(msg)
	case WARN:
		logger.Warn(msg)
	case ERROR:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

// Trace logs a message at TRACE level
func Trace(message string, a ...any) {
	Log(TRACE, message, a...)
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	Log(DEBUG, message, a...)
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	Log(INFO, message, a...)
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	Log(WARN, message, a...)
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	Log(ERROR, message, a...)
}

// Panic exists with a panic
func Panic(message string, a ...any) {
	panic(fmt.Sprintf(message, a...))
}
