// Package httpapi exposes the manager's localhost admin surface: status,
// resolved models, tracked game sessions, a chat pass-through, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jamesonBradfield/local-ai-manager/internal/supervisor"
	"github.com/jamesonBradfield/local-ai-manager/pkg/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes int64 = 1 << 20

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.ServerStatus
	Models() []types.AvailableModel
	Sessions() []types.GameSession
	Generate(ctx context.Context, req types.ChatRequest) (string, error)
}

// NewRouter builds the admin router.
func NewRouter(svc Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	r.Get("/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Models())
	})
	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		sessions := svc.Sessions()
		if sessions == nil {
			sessions = []types.GameSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})
	r.Post("/v1/chat/completions", func(w http.ResponseWriter, req *http.Request) {
		var chatReq types.ChatRequest
		body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&chatReq); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		content, err := svc.Generate(req.Context(), chatReq)
		if err != nil {
			if supervisor.IsNotRunning(err) {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.GenerateResponse{Content: content})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
