package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"voicebank/internal/model"
	"voicebank/internal/service"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	sessionSvc *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessionSvc *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// Sentences handles GET /api/sentences?count=N.
func (h *SessionHandler) Sentences(w http.ResponseWriter, r *http.Request) {
	count := service.DefaultSentenceCount
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sentences": h.sessionSvc.Sentences(count),
	})
}

// StartSessionRequest is the request body for starting a session.
type StartSessionRequest struct {
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	SentenceCount int    `json:"sentenceCount"`
	ConsentGiven  bool   `json:"consentGiven"`
}

// Start handles POST /api/session/start.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Age == 0 || req.Gender == "" || !req.ConsentGiven {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	session, err := h.sessionSvc.Start(r.Context(), service.StartInput{
		Age:           req.Age,
		Gender:        req.Gender,
		SentenceCount: req.SentenceCount,
		ConsentGiven:  req.ConsentGiven,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": session.SessionID,
		"sentences": session.Sentences,
	})
}

// SessionIDRequest is the request body for session completion endpoints.
type SessionIDRequest struct {
	SessionID string `json:"sessionId"`
}

// Complete handles POST /api/session/complete.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req SessionIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	session, err := h.sessionSvc.Complete(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":             "Session completed successfully",
		"completedRecordings": session.CompletedRecordings,
		"totalSentences":      session.SentenceCount,
		"completionRate":      session.CompletionRate(),
	})
}

// End handles POST /api/session/end.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var req SessionIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	if _, err := h.sessionSvc.End(r.Context(), req.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Session ended successfully",
	})
}

// clientIP prefers the forwarding header set by the reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps the domain error taxonomy to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, model.ErrRecordingNotFound):
		writeError(w, http.StatusNotFound, "Recording not found")
	case errors.Is(err, model.ErrUnsupportedMedia):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
