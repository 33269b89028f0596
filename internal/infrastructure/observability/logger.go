package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the process logger. Output defaults to stdout.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	return zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithContext returns a child logger carrying the given fields.
func WithContext(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	l := logger.With()
	for k, v := range fields {
		l = l.Interface(k, v)
	}
	return l.Logger()
}

// ForProvider tags log lines with the provider key.
func ForProvider(logger zerolog.Logger, provider string) zerolog.Logger {
	return logger.With().Str("provider", provider).Logger()
}
