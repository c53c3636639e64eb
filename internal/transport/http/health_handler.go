package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"eyeparse/internal/config"
	"eyeparse/internal/websocket"
)

// HealthHandler reports liveness and version information
type HealthHandler struct {
	hub     *websocket.Hub
	started time.Time
}

// NewHealthHandler creates a health handler. hub may be nil.
func NewHealthHandler(hub *websocket.Hub) *HealthHandler {
	return &HealthHandler{hub: hub, started: time.Now()}
}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"version": config.AppVersion,
	}
	if h.hub != nil {
		resp["websocket"] = h.hub.Stats()
	}
	render.JSON(w, r, resp)
}

// Version handles GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"name":    config.AppName,
		"version": config.AppVersion,
	})
}
