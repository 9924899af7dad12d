// Package logging provides structured logging for junction, wrapping
// charmbracelet/log behind a small Printf/Debugf surface plus a
// process-wide default-logger singleton.
package logging

import (
	"io"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel mirrors charmlog's levels so callers of this package never need
// to import charmbracelet/log directly.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) toCharm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level  LogLevel
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger wraps a charmbracelet/log logger with the key-value and
// printf-style methods the rest of junction calls through the
// interfaces.Logger contract.
type Logger struct {
	l *charmlog.Logger
}

// NewLogger creates a new logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	cl := charmlog.NewWithOptions(output, charmlog.Options{
		ReportTimestamp: true,
		Level:           config.Level.toCharm(),
	})
	return &Logger{l: cl}
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) Debug(msg string, args ...any) { l.l.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.l.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.l.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.l.Error(msg, args...) }

// Printf-style logging, for callers (and interfaces.Logger implementers)
// that only format a string rather than pass structured key-values.
func (l *Logger) Debugf(format string, args ...any) { l.l.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.l.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.l.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.l.Errorf(format, args...) }

// Printf satisfies interfaces.Logger's legacy stdlib-log-shaped method.
func (l *Logger) Printf(format string, args ...any) { l.l.Infof(format, args...) }

// Global convenience functions over the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
