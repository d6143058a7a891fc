package middleware

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/polite-concession/internal/logger"
	"github.com/freeeve/polite-concession/internal/metrics"
)

// quietPaths are probed constantly and only logged at debug level.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// Logger logs each request with a unique request ID and records request metrics
// under the matched route pattern.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.NewRequestID()
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		logCtx := logger.Get().With().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		level := zerolog.InfoLevel
		if quietPaths[r.URL.Path] {
			level = zerolog.DebugLevel
		}

		if r.Body != nil && r.Body != http.NoBody {
			if body, err := io.ReadAll(r.Body); err == nil {
				logger.LogRequest(logCtx, body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}
		logCtx.WithLevel(level).
			Interface("queryParams", r.URL.Query()).
			Msg("Request received")

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		metrics.ObserveRequest(r.Method, r.Pattern, rw.status, elapsed)
		logger.LogResponse(logCtx, rw.buf.Bytes())
		if rw.status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		logCtx.WithLevel(level).
			Str("route", r.Pattern).
			Int("status", rw.status).
			Dur("durationMs", elapsed).
			Msg("Request completed")
	})
}

// CORS adds Cross-Origin Resource Sharing headers. allowedOrigins is "*" or a
// comma-separated list; listed origins are echoed back, others get no grant.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			switch origin := r.Header.Get("Origin"); {
			case allowed["*"]:
				h.Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JSON sets the Content-Type header to application/json for all responses.
func JSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Recover turns a handler panic into a 500 so one bad session cannot take the
// server down.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				l := logger.ForRequest(r.Context())
				l.Error().
					Interface("panic", v).
					Str("path", r.URL.Path).
					Msg("Handler panicked")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Chain applies middleware in order (first applied = outermost).
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// maxCapturedBody bounds how much of a response is kept for debug logging.
const maxCapturedBody = 4096

// responseWriter records the status and the first bytes of the body.
type responseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if room := maxCapturedBody - w.buf.Len(); room > 0 {
		w.buf.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker so WebSocket upgrades work through the logging middleware.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
