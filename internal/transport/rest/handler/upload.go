package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"voicebank/internal/model"
	"voicebank/internal/service"
)

// UploadHandler handles audio recording uploads.
type UploadHandler struct {
	uploadSvc *service.UploadService
	maxBytes  int64
}

// NewUploadHandler creates a new upload handler. maxBytes caps the request
// body size.
func NewUploadHandler(uploadSvc *service.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploadSvc: uploadSvc, maxBytes: maxBytes}
}

// Upload handles POST /api/upload (multipart form with an "audio" part plus
// sessionId, sentenceIndex and sentence fields).
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "File too large (max 10MB)")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		writeError(w, http.StatusBadRequest, model.ErrUnsupportedMedia.Error())
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	sentenceIndex := 0
	if v := r.FormValue("sentenceIndex"); v != "" {
		sentenceIndex, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid sentence index")
			return
		}
	}

	result, err := h.uploadSvc.Save(r.Context(), service.UploadInput{
		SessionID:     sessionID,
		SentenceIndex: sentenceIndex,
		Sentence:      r.FormValue("sentence"),
		Audio:         file,
		Size:          header.Size,
		MimeType:      mimeType,
		OriginalName:  header.Filename,
		BrowserInfo:   r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":             "Recording uploaded successfully",
		"filename":            result.Filename,
		"fileId":              result.FileID.Hex(),
		"completedRecordings": result.CompletedRecordings,
	})
}
