package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogLevel string

const (
	// LogLevelDebug is used for debug messages
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is used for informational messages
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn is used for warning messages
	LogLevelWarn LogLevel = "warn"
	// LogLevelError is used for error messages
	LogLevelError LogLevel = "error"
)

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(logLevel LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(logLevel))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CreateLogger creates a tint console logger. When logDir is not empty the
// same records are also appended to a daily rotating file named
// <fileName>-YYYY-MM-DD.log inside logDir.
func CreateLogger(logLevel LogLevel, logDir string, fileName string) Logger {
	level := ParseLevel(logLevel)

	var out io.Writer = os.Stderr
	noColor := !isatty.IsTerminal(os.Stderr.Fd())

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err == nil {
			out = io.MultiWriter(os.Stderr, NewDailyRotatingWriter(logDir, fileName))
			// ANSI escapes would end up in the file
			noColor = true
		}
	}

	return NewConsoleLogger(out, level, noColor)
}

// NewConsoleLogger creates a tint-backed logger writing to w.
func NewConsoleLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	}))
}

// nopLogger is a no-operation logger that implements the Logger interface.
type nopLogger struct{}

// NopLogger is a singleton Logger that performs no operations.
var NopLogger Logger = &nopLogger{}

func (l *nopLogger) Info(msg string, args ...any)  {}
func (l *nopLogger) Warn(msg string, args ...any)  {}
func (l *nopLogger) Error(msg string, args ...any) {}
func (l *nopLogger) Debug(msg string, args ...any) {}

// OrNop returns logger, or NopLogger when logger is nil.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return NopLogger
	}
	return logger
}
