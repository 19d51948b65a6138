// Package logger provides the process-wide structured logging facade,
// backed by zerolog.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger writing JSON to os.Stdout. Safe to
// call more than once; only the first call takes effect.
func Init() {
	once.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		defaultLogger.Info().Msg("logger initialized")
	})
}

// InitWithLevel initializes the logger at the given level ("debug", "info",
// "warn", "error"). Falls back to info on an unrecognized level.
func InitWithLevel(level string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		defaultLogger = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
		defaultLogger.Info().Str("level", lvl.String()).Msg("logger initialized")
	})
}

// Get returns the initialized default logger, initializing it if needed.
func Get() *zerolog.Logger {
	Init()
	return &defaultLogger
}

// Info logs an informational message with optional key/value pairs.
func Info(msg string, kv ...any) {
	logWithFields(Get().Info(), msg, kv)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, kv ...any) {
	logWithFields(Get().Warn(), msg, kv)
}

// Error logs an error message, attaching err if non-nil.
func Error(msg string, err error, kv ...any) {
	ev := Get().Error()
	if err != nil {
		ev = ev.Err(err)
	}
	logWithFields(ev, msg, kv)
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, kv ...any) {
	logWithFields(Get().Debug(), msg, kv)
}

// logWithFields attaches alternating key/value pairs to ev before emitting
// msg. Odd-length kv drops its trailing element.
func logWithFields(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
