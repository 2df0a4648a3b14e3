// Package logging provides the leveled logger used across lmsp.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelOff
)

// Logger is the logging interface accepted by lmsp components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	SetLevel(level LogLevel)
}

// DefaultLogger writes slog text records.
type DefaultLogger struct {
	logger *slog.Logger
	out    io.Writer
	level  LogLevel
}

// NewLogger creates a logger writing to out (stderr when nil).
func NewLogger(level LogLevel, out io.Writer) *DefaultLogger {
	if out == nil {
		out = os.Stderr
	}
	l := &DefaultLogger{out: out}
	l.SetLevel(level)
	return l
}

// ForVerbosity returns the level selected by the -v flag.
func ForVerbosity(verbose bool) LogLevel {
	if verbose {
		return LogLevelDebug
	}
	return LogLevelWarn
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func newHandler(out io.Writer, level LogLevel) slog.Handler {
	opts := &slog.HandlerOptions{Level: toSlogLevel(level)}
	// Timestamps only in debug output; warnings stay one short line.
	if level > LogLevelDebug {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	return slog.NewTextHandler(out, opts)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debug(msg, args...)
	}
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Info(msg, args...)
	}
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warn(msg, args...)
	}
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) {
	if l.level <= LogLevelError {
		l.logger.Error(msg, args...)
	}
}

// SetLevel sets the logging level
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
	l.logger = slog.New(newHandler(l.out, level))
}

// Nop returns a logger that discards everything.
func Nop() *DefaultLogger {
	return NewLogger(LogLevelOff, io.Discard)
}
