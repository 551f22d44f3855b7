package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware returns an HTTP middleware that requires a valid bearer token
// and injects the resolved identity into the request context.
func Middleware(v *Verifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing Authorization header")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				unauthorized(w, "expected Bearer token")
				return
			}

			id, err := v.Verify(r.Context(), token)
			if err != nil {
				log.Debug("token rejected", zap.Error(err))
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
