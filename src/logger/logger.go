package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------

// Logger provides named, printf-style logging on top of a slog handler
type Logger struct {
	name   string
	logger *slog.Logger
	level  *slog.LevelVar
	exit   func(int)
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. config may be nil, in which case
// a text handler at INFO level is used.
func NewLogger(config *models.MConfig, name string) *Logger {
	level, format := "INFO", "text"
	if config != nil {
		level = config.LogLevel
		format = config.LogFormat
	}
	return newLogger(os.Stdout, level, format, name)
}

// -----------------------------------------------------------------------------

// NewLoggerWithWriter is used by tests to capture output
func NewLoggerWithWriter(w io.Writer, level, name string) *Logger {
	return newLogger(w, level, "text", name)
}

// -----------------------------------------------------------------------------

func newLogger(w io.Writer, level, format, name string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		name:   name,
		logger: slog.New(handler).With("component", name),
		level:  lv,
		exit:   os.Exit,
	}
}

// -----------------------------------------------------------------------------

// ParseLevel maps the config level names onto slog levels
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// -----------------------------------------------------------------------------

// With returns a child logger that shares the handler and level
func (l *Logger) With(name string) *Logger {
	return &Logger{
		name:   l.name + "." + name,
		logger: l.logger.With("sub", name),
		level:  l.level,
		exit:   l.exit,
	}
}

// -----------------------------------------------------------------------------

// Name returns the component name
func (l *Logger) Name() string {
	return l.name
}

// -----------------------------------------------------------------------------

// Slog exposes the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "critical", true)
	l.exit(1)
}
