// Package client drives a voicebank collection session end to end: it wraps
// the HTTP API and implements the recording state machine over an abstract
// audio capture device.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"
)

// API is a client for the voicebank HTTP API.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPI creates an API client for the given base URL.
func NewAPI(baseURL string) *API {
	return &API{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// StartSessionInput carries the participant demographics.
type StartSessionInput struct {
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	SentenceCount int    `json:"sentenceCount"`
	ConsentGiven  bool   `json:"consentGiven"`
}

// StartSessionResponse is the server's reply to a session start.
type StartSessionResponse struct {
	SessionID string   `json:"sessionId"`
	Sentences []string `json:"sentences"`
}

// StartSession creates a new collection session.
func (a *API) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionResponse, error) {
	var resp StartSessionResponse
	if err := a.postJSON(ctx, "/api/session/start", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sentences fetches count candidate sentences without starting a session.
func (a *API) Sentences(ctx context.Context, count int) ([]string, error) {
	u := a.BaseURL + "/api/sentences?count=" + url.QueryEscape(strconv.Itoa(count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Sentences []string `json:"sentences"`
	}
	if err := a.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Sentences, nil
}

// UploadResponse is the server's reply to a recording upload.
type UploadResponse struct {
	Message             string `json:"message"`
	Filename            string `json:"filename"`
	FileID              string `json:"fileId"`
	CompletedRecordings int    `json:"completedRecordings"`
}

// UploadRecording sends one recorded sentence as a multipart form.
func (a *API) UploadRecording(ctx context.Context, sessionID string, sentenceIndex int, sentence string, audio []byte, mimeType string) (*UploadResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename="recording_%s_%d.webm"`, sessionID, sentenceIndex))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}

	form.WriteField("sessionId", sessionID)
	form.WriteField("sentenceIndex", strconv.Itoa(sentenceIndex))
	form.WriteField("sentence", sentence)
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp UploadResponse
	if err := a.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteSessionResponse is the server's reply to a session completion.
type CompleteSessionResponse struct {
	Message             string  `json:"message"`
	CompletedRecordings int     `json:"completedRecordings"`
	TotalSentences      int     `json:"totalSentences"`
	CompletionRate      float64 `json:"completionRate"`
}

// CompleteSession marks the session finished after the last sentence.
func (a *API) CompleteSession(ctx context.Context, sessionID string) (*CompleteSessionResponse, error) {
	var resp CompleteSessionResponse
	err := a.postJSON(ctx, "/api/session/complete", map[string]string{"sessionId": sessionID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// EndSession reports a user-initiated early exit.
func (a *API) EndSession(ctx context.Context, sessionID string) error {
	return a.postJSON(ctx, "/api/session/end", map[string]string{"sessionId": sessionID}, nil)
}

func (a *API) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *API) do(req *http.Request, out interface{}) error {
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
