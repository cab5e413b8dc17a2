package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is the minimum severity a Logger emits. Events logged below this
// threshold are dropped by zerolog before any field formatting runs.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects how a Logger renders events: one-line JSON for
// machine consumption, or zerolog's colorized console writer for a
// terminal watching a run live.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

// LoggerConfig is read from Config.Logging to build the sink every
// simulation run writes through.
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the field-pair convenience API the
// rest of this codebase calls (Info("msg", "key", value, ...) instead of
// chaining zerolog's builder).
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds a Logger from cfg, defaulting Output to stdout.
func NewLogger(cfg LoggerConfig) *Logger {
	zlog := zerolog.New(sinkFor(cfg)).With().Timestamp().Logger().Level(zerologLevel(cfg.Level))
	return &Logger{logger: zlog}
}

// sinkFor resolves the io.Writer a LoggerConfig writes through, wrapping it
// in zerolog's console writer when Format asks for human-readable output.
// Shared by NewLogger and InitGlobalLogger so the two sinks never drift.
func sinkFor(cfg LoggerConfig) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == LogFormatConsole {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	event := l.logger.Debug()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) {
	event := l.logger.Info()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	event := l.logger.Warn()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) {
	event := l.logger.Error()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	event := l.logger.Fatal()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// WithField creates a child logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// WithFields creates a child logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

// WithRun tags every subsequent log line from the returned Logger with the
// run_id and seed of one simulation run, so a run's whole event trace can
// be grepped out of a log stream carrying multiple runs.
func (l *Logger) WithRun(runID string, seed int64) *Logger {
	return l.WithFields(map[string]interface{}{
		"run_id": runID,
		"seed":   seed,
	})
}

// addFields adds key-value pairs to a log event
func (l *Logger) addFields(event *zerolog.Event, fields ...interface{}) {
	if len(fields)%2 != 0 {
		event.Str("error", "odd number of fields")
		return
	}

	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			event.Str("error", fmt.Sprintf("field key at index %d is not a string", i))
			continue
		}

		value := fields[i+1]
		event.Interface(key, value)
	}
}

// GetZerologLogger returns the underlying zerolog logger
func (l *Logger) GetZerologLogger() zerolog.Logger {
	return l.logger
}

// InitGlobalLogger points the package-level zerolog logger (used by the
// Debug/Info/Warn/Error/Fatal free functions below) at cfg's sink. Callers
// that build a run-scoped *Logger via NewLogger/WithRun don't need this —
// it exists for one-off diagnostics emitted before a Driver exists.
func InitGlobalLogger(cfg LoggerConfig) {
	log.Logger = zerolog.New(sinkFor(cfg)).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))
}

// Debug logs a debug message using the global logger
func Debug(msg string) {
	log.Debug().Msg(msg)
}

// Info logs an info message using the global logger
func Info(msg string) {
	log.Info().Msg(msg)
}

// Warn logs a warning message using the global logger
func Warn(msg string) {
	log.Warn().Msg(msg)
}

// Error logs an error message using the global logger
func Error(msg string) {
	log.Error().Msg(msg)
}

// Fatal logs a fatal message and exits using the global logger
func Fatal(msg string) {
	log.Fatal().Msg(msg)
}
