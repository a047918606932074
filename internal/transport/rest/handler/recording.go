package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voicebank/internal/model"
	"voicebank/internal/service"
)

// RecordingHandler serves the operator listing and audio streaming endpoints.
type RecordingHandler struct {
	recordingSvc *service.RecordingService
	logger       *zap.Logger
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(recordingSvc *service.RecordingService, logger *zap.Logger) *RecordingHandler {
	return &RecordingHandler{recordingSvc: recordingSvc, logger: logger}
}

// List handles GET /api/recordings.
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	listing, err := h.recordingSvc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Play handles GET /api/recording/{id}/play, streaming audio inline.
func (h *RecordingHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, false)
}

// Download handles GET /api/recording/{id}/download, streaming audio as an
// attachment.
func (h *RecordingHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, true)
}

func (h *RecordingHandler) stream(w http.ResponseWriter, r *http.Request, attachment bool) {
	id := mux.Vars(r)["id"]

	recording, src, err := h.recordingSvc.Open(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer src.Close()

	mimeType := recording.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}

	if attachment {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", recording.Filename))
	} else {
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", recording.Filename))
	}
	if recording.FileSize > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", recording.FileSize))
	}

	if _, err := io.Copy(w, src); err != nil {
		// Headers are already sent; nothing to do but log.
		h.logger.Warn("audio stream interrupted",
			zap.String("recordingId", id), zap.Error(err))
	}
}
