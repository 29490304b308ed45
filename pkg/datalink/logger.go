package datalink

import (
	"avaneesh/datalink-go/pkg/internal/logger"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug LogLevel = iota
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn
	// LevelError shows only error messages
	LevelError
)

// SetLogLevel replaces the package logger with a console logger at level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(logger.Level(level)))
}

// ParseLogLevel parses "debug", "info", "warn" or "error"
func ParseLogLevel(s string) (LogLevel, error) {
	level, err := logger.ParseLevel(s)
	return LogLevel(level), err
}

// EnableFrameDebug enables or disables hex dumps of every frame sent and
// received, logged at debug level
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}
