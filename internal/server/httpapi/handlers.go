package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/empire-compass/compass-server/internal/auth"
	"github.com/empire-compass/compass-server/internal/backup"
	"github.com/empire-compass/compass-server/internal/model"
)

const maxAskBodySize = 1 << 20 // 1MB

// handleRestore accepts the entire backup as the raw request body and replays
// it synchronously. The response always carries the full RestoreResult:
// 400 for malformed input (nothing written), 500 for a partial write failure,
// 200 on success.
func handleRestore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxRestoreBytes)
		defer r.Body.Close()

		content, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "backup exceeds size limit")
				return
			}
			httpError(w, http.StatusBadRequest, "unreadable request body")
			return
		}

		bundle, err := backup.ParseBundle(content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, model.RestoreResult{
				Success:   false,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Error:     err.Error(),
			})
			return
		}

		res := deps.Restorer.RestoreBundle(r.Context(), bundle, func(p model.RestoreProgress) {
			deps.Log.Info("restore progress",
				zap.String("collection", p.Collection),
				zap.Int("collectionsDone", p.CollectionsDone),
				zap.Int("collectionsTotal", p.CollectionsTotal),
				zap.Int("documentsDone", p.DocumentsDone),
				zap.Int("documentsTotal", p.DocumentsTotal),
			)
		})

		status := http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, res)
	}
}

// handleExport streams a full backup envelope as a JSON attachment.
func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Exporter.Export(r.Context())
		if err != nil {
			deps.Log.Error("export failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		filename := "backup-" + time.Now().UTC().Format("2006-01-02") + ".json"
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		_, _ = w.Write(data)
	}
}

type askPayload struct {
	Question string `json:"question"`
}

// handleAsk forwards the question to the upstream answering service and
// relays its JSON answer verbatim. Quota gating happens in middleware.
func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)
		defer r.Body.Close()

		var req askPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "question is required")
			return
		}

		answer, err := deps.Answerer.Ask(r.Context(), req.Question)
		if err != nil {
			deps.Log.Error("ask upstream failed", zap.Error(err))
			httpError(w, http.StatusBadGateway, "answering service unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(answer)
	}
}

// handleQuota reports the caller's current quota without consuming a slot.
func handleQuota(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromCtx(r.Context())
		if !ok {
			httpError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		d, err := deps.Limiter.Peek(r.Context(), id.Subject)
		if err != nil {
			deps.Log.Error("quota peek failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "quota status unavailable")
			return
		}

		body := map[string]any{
			"limit":     d.Limit,
			"remaining": d.Remaining,
		}
		if !d.ResetAt.IsZero() {
			body["resetAt"] = d.ResetAt.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, body)
	}
}
