// Package httpapi wires the HTTP surface: backup restore/export for admins
// and the quota-gated ask endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/empire-compass/compass-server/internal/backup"
	"github.com/empire-compass/compass-server/internal/ratelimit"
)

// DefaultMaxRestoreBytes caps the raw restore request body.
const DefaultMaxRestoreBytes = 100 << 20 // 100MB

// Answerer abstracts the upstream answering client.
type Answerer interface {
	Ask(ctx context.Context, question string) (json.RawMessage, error)
}

// Deps carries everything the router needs. Auth is the identity middleware;
// routes behind it can rely on an identity being present in the context.
type Deps struct {
	Log             *zap.Logger
	Auth            func(http.Handler) http.Handler
	Admins          ratelimit.AdminChecker
	Gate            *ratelimit.Gate
	Limiter         ratelimit.Limiter
	Restorer        *backup.Restorer
	Exporter        *backup.Exporter
	Answerer        Answerer
	MaxRestoreBytes int64
}

// New builds the router.
func New(deps Deps) http.Handler {
	if deps.MaxRestoreBytes <= 0 {
		deps.MaxRestoreBytes = DefaultMaxRestoreBytes
	}

	r := chi.NewRouter()
	r.Use(Recover(deps.Log))
	r.Use(RequestLogger(deps.Log))

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(deps.Admins))
			r.Post("/backup/restore", handleRestore(deps))
			r.Get("/backup/export", handleExport(deps))
		})

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(deps.Gate))
			r.Post("/ask", handleAsk(deps))
		})
		r.Get("/ask/quota", handleQuota(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
