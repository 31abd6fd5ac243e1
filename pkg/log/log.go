package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithServerID creates a child logger with server_uuid field
func WithServerID(serverID string) zerolog.Logger {
	return Logger.With().Str("server_uuid", serverID).Logger()
}

// WithServiceID creates a child logger with service field
func WithServiceID(service string) zerolog.Logger {
	return Logger.With().Str("service", service).Logger()
}

// WithInstanceID creates a child logger with instance_uuid field
func WithInstanceID(instanceID string) zerolog.Logger {
	return Logger.With().Str("instance_uuid", instanceID).Logger()
}

// WithHistoryID creates a child logger with history_uuid field
func WithHistoryID(historyID string) zerolog.Logger {
	return Logger.With().Str("history_uuid", historyID).Logger()
}

// ParseLevel maps a config string onto a Level, defaulting to info
func ParseLevel(s string) Level {
	switch Level(s) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return Level(s)
	}
	return InfoLevel
}
