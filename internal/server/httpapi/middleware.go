package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/empire-compass/compass-server/internal/auth"
	"github.com/empire-compass/compass-server/internal/ratelimit"
)

// Rate-limit response headers, set on every quota-tracked path.
const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// Recover converts panics into 500s and logs the stack.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					httpError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs request metadata, never payloads.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// RequireAdmin restricts a route to admin identities.
func RequireAdmin(admins ratelimit.AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromCtx(r.Context())
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !admins.IsAdmin(r.Context(), id) {
				httpError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies the AI quota gate. Quota-tracked requests get the three
// rate-limit headers on both the allow and reject paths; admin bypass and
// fail-open set none.
func RateLimit(gate *ratelimit.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromCtx(r.Context())
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			out := gate.Check(r.Context(), id)
			if out.Bypassed || out.FailedOpen {
				next.ServeHTTP(w, r)
				return
			}

			d := out.Decision
			w.Header().Set(headerLimit, strconv.Itoa(d.Limit))
			w.Header().Set(headerRemaining, strconv.Itoa(d.Remaining))
			w.Header().Set(headerReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !out.Allowed {
				writeJSON(w, http.StatusTooManyRequests, quotaExceededBody(d))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func quotaExceededBody(d ratelimit.Decision) map[string]any {
	retryAfter := int64(d.RetryAfter.Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}
	return map[string]any{
		"message":           "AI request quota exceeded, try again later",
		"retryAfterSeconds": retryAfter,
		"resetAt":           d.ResetAt.UTC().Format(time.RFC3339),
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
