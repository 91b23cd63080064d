package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SelfTestInfo describes what the process was started with.
type SelfTestInfo struct {
	Mode            string `json:"mode"`
	ClientIDPresent bool   `json:"client_id_present"`
	TokenPresent    bool   `json:"token_present"`
	Redis           bool   `json:"redis"`
	Postgres        bool   `json:"postgres"`
	Notify          bool   `json:"notify"`
}

// SelfTestHandler reports credential presence and wiring without exposing
// any secret values.
type SelfTestHandler struct {
	info SelfTestInfo
}

// NewSelfTestHandler creates a SelfTestHandler.
func NewSelfTestHandler(info SelfTestInfo) *SelfTestHandler {
	return &SelfTestHandler{info: info}
}

// SelfTest responds with the startup wiring snapshot.
// GET /api/selftest
func (h *SelfTestHandler) SelfTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": h.info,
		"ts":     time.Now().UTC().Format(time.RFC3339),
	})
}
