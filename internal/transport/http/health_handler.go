package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"datapulse/pkg/contracts"
)

// SessionCounter reports how many sessions are open
type SessionCounter interface {
	Len() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	sessions SessionCounter
	started  time.Time
	logger   *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions SessionCounter, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		sessions: sessions,
		started:  time.Now(),
		logger:   logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the health routes
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HealthCheck)
	r.Get("/live", h.LivenessCheck)
	return r
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Len()
	}
	render.JSON(w, r, map[string]interface{}{
		"status":   "ok",
		"version":  contracts.GetVersionInfo(),
		"sessions": sessions,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}

// LivenessCheck handles GET /healthz/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Version handles GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
