package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/yatrik-auth/internal/auth"
	"github.com/ovaphlow/yatrik-auth/internal/ratelimit"
	"github.com/ovaphlow/yatrik-auth/pkg/utilities"
)

const RequestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level, tagged with its request id.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", w.Header().Get(RequestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// RequestIDMiddleware echoes an incoming X-Request-ID or assigns a snowflake id.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = utilities.NewSnowflakeID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. Auth responses
// carry tokens, so they are never cached.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")
			if h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			// HSTS only over TLS.
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the collaborators the routes need. Limiter may be nil.
type Deps struct {
	Logger   *zap.SugaredLogger
	Resolver *auth.Resolver
	Limiter  *ratelimit.Limiter
}

// RegisterRoutes mounts the auth API on a ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	h := auth.NewHandler(d.Resolver, d.Logger)

	limited := func(fn http.HandlerFunc) http.Handler {
		if d.Limiter == nil {
			return fn
		}
		return d.Limiter.Middleware(d.Logger)(fn)
	}

	mux.HandleFunc("GET /api/auth/health", h.Health)
	mux.Handle("POST /api/auth/login", limited(h.Login))
	mux.Handle("POST /api/auth/unified-login", limited(h.UnifiedLogin))
	mux.Handle("POST /api/auth/role-login", limited(h.RoleLogin))
	mux.HandleFunc("GET /api/auth/me", h.Me)

	return RequestIDMiddleware()(LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux)))
}
