// Package logger provides structured logging using zerolog.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options configure the global logger.
type Options struct {
	Level zerolog.Level
	File  string // also append logs here when set
	Color bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FILE and the dev-mode flags.
func OptionsFromEnv() Options {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return Options{Level: level, File: os.Getenv("LOG_FILE"), Color: isDevelopmentMode()}
}

// Init configures the global logger from the environment.
func Init() { Configure(OptionsFromEnv()) }

// Configure sets up the global logger: UTC millisecond timestamps, a fixed-width
// caller column and console output.
func Configure(opts Options) {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = callerColumn
	zerolog.SetGlobalLevel(opts.Level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: milliTimeFormat, NoColor: !opts.Color}
	if opts.File != "" {
		if f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = io.MultiWriter(out, f)
		}
	}
	log.Logger = log.Output(out).With().Caller().Logger()
	log.Info().Str("level", opts.Level.String()).Bool("dev", opts.Color).Msg("Logger initialized")
}

const callerWidth = 30

// callerColumn renders file:line padded or cut to callerWidth.
func callerColumn(_ uintptr, file string, line int) string {
	path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(path) >= callerWidth {
		return path[len(path)-callerWidth:]
	}
	return path + strings.Repeat(" ", callerWidth-len(path))
}

// Get returns the global logger instance.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID returns a short random ID for correlating request logs.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns a logger enriched with the request ID from context.
func ForRequest(ctx context.Context) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return log.Logger
	}
	return log.Logger.With().Str("requestId", id).Logger()
}

// ForSession returns a logger enriched with the request ID and a session ID.
func ForSession(ctx context.Context, sessionID string) zerolog.Logger {
	return ForRequest(ctx).With().Str("sessionId", sessionID).Logger()
}

// maxLoggedBody caps how much of a request or response body reaches the log.
const maxLoggedBody = 1000

// LogRequest logs a request body at debug level.
func LogRequest(logger zerolog.Logger, body []byte) {
	logBody(logger, "requestBody", "Request body", body)
}

// LogResponse logs a response body at debug level.
func LogResponse(logger zerolog.Logger, body []byte) {
	logBody(logger, "responseBody", "Response body", body)
}

func logBody(logger zerolog.Logger, field, msg string, body []byte) {
	if len(body) == 0 {
		return
	}
	ev := logger.Debug()
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg(msg)
}
