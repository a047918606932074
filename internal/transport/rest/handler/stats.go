package handler

import (
	"net/http"
	"time"

	"voicebank/internal/repository"
	"voicebank/internal/service"
	"voicebank/internal/storage"
)

// StatsHandler serves the aggregate statistics and health endpoints.
type StatsHandler struct {
	statsSvc *service.StatsService
	sessions repository.SessionRepo
	blobs    storage.BlobStore
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsSvc *service.StatsService, sessions repository.SessionRepo, blobs storage.BlobStore) *StatsHandler {
	return &StatsHandler{statsSvc: statsSvc, sessions: sessions, blobs: blobs}
}

// Stats handles GET /api/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsSvc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /health.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	gridFSStatus := "initialized"
	if err := h.blobs.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		gridFSStatus = "unavailable"
	}

	sessionCount, err := h.sessions.CountAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":    "ERROR",
			"message":   err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "OK",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"database":     dbStatus,
		"gridFS":       gridFSStatus,
		"uptime":       h.statsSvc.Uptime(),
		"sessionCount": sessionCount,
	})
}
