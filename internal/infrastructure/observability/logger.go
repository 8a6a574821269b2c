package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logLevel := parseLogLevel(level)

	return zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Str("service", "epayrobot").
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
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

// WithFlow scopes a logger to one transaction run. Card data never goes in
// here; only the flow name, the remote host and the request id.
func WithFlow(logger zerolog.Logger, flow, host, requestID string) zerolog.Logger {
	l := logger.With().Str("flow", flow)
	if host != "" {
		l = l.Str("host", host)
	}
	if requestID != "" {
		l = l.Str("request_id", requestID)
	}
	return l.Logger()
}
