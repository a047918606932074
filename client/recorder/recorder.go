// Package recorder implements the sentence-by-sentence recording flow on top
// of the voicebank API: request the microphone, capture audio for the current
// sentence, then upload, re-record, or abandon.
package recorder

import (
	"context"
	"errors"
	"sync"

	"voicebank/client"
)

// State is the recorder's position in the collection flow.
type State string

const (
	StateIdle          State = "idle"
	StateRequestingMic State = "requesting_mic"
	StateRecording     State = "recording"
	StateStopped       State = "stopped"
	StateUploading     State = "uploading"
	StateComplete      State = "complete"
)

var (
	// ErrInvalidState means the requested transition is not legal from the
	// current state.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrNoSession means no session has been started yet.
	ErrNoSession = errors.New("no active session")

	// ErrNoAudio means a save was attempted with nothing captured.
	ErrNoAudio = errors.New("no audio captured")

	// Microphone failures surfaced by capture devices. A device reports the
	// one matching its platform error so callers can show a precise message.
	ErrMicPermission  = errors.New("microphone access denied")
	ErrMicNotFound    = errors.New("no microphone found")
	ErrMicUnsupported = errors.New("audio capture not supported")
)

// CaptureDevice abstracts a platform audio source. Start begins capture and
// returns a channel of encoded audio chunks; the channel is closed after Stop.
type CaptureDevice interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

// Recorder walks a participant through their assigned sentences.
type Recorder struct {
	api      *client.API
	device   CaptureDevice
	mimeType string

	mu        sync.Mutex
	state     State
	sessionID string
	sentences []string
	index     int
	chunks    [][]byte
	drained   chan struct{}
	attempts  int
}

// New creates a Recorder in the idle state.
func New(api *client.API, device CaptureDevice) *Recorder {
	return &Recorder{
		api:      api,
		device:   device,
		mimeType: "audio/webm",
		state:    StateIdle,
	}
}

// StartSession creates a server session and loads its sentence list.
func (r *Recorder) StartSession(ctx context.Context, in client.StartSessionInput) error {
	r.mu.Lock()
	if r.state != StateIdle || r.sessionID != "" {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.mu.Unlock()

	resp, err := r.api.StartSession(ctx, in)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = resp.SessionID
	r.sentences = resp.Sentences
	r.index = 0
	r.attempts = 0
	return nil
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the active session id, or "" before StartSession.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// CurrentSentence returns the sentence to read next. ok is false once every
// sentence has been recorded.
func (r *Recorder) CurrentSentence() (sentence string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index < 0 || r.index >= len(r.sentences) {
		return "", false
	}
	return r.sentences[r.index], true
}

// Progress reports how many sentences are done out of the total.
func (r *Recorder) Progress() (done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index, len(r.sentences)
}

// Attempts returns how many times the current sentence has been re-recorded.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Record requests the microphone and begins capturing the current sentence.
// A device error leaves the recorder idle so the participant can retry.
func (r *Recorder) Record(ctx context.Context) error {
	r.mu.Lock()
	if r.sessionID == "" {
		r.mu.Unlock()
		return ErrNoSession
	}
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.state = StateRequestingMic
	r.mu.Unlock()

	ch, err := r.device.Start(ctx)
	if err != nil {
		r.mu.Lock()
		if r.state == StateRequestingMic {
			r.state = StateIdle
		}
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	if r.state != StateRequestingMic {
		// Abandoned while waiting for the microphone; release the handle.
		r.mu.Unlock()
		r.device.Stop()
		return ErrInvalidState
	}
	r.state = StateRecording
	r.chunks = nil
	r.drained = make(chan struct{})
	drained := r.drained
	r.mu.Unlock()

	go func() {
		for chunk := range ch {
			buf := make([]byte, len(chunk))
			copy(buf, chunk)
			r.mu.Lock()
			r.chunks = append(r.chunks, buf)
			r.mu.Unlock()
		}
		close(drained)
	}()

	return nil
}

// Stop ends capture. The captured audio stays buffered for Save or Rerecord.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return ErrInvalidState
	}
	drained := r.drained
	r.mu.Unlock()

	err := r.device.Stop()
	<-drained

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	return err
}

// Audio returns the captured bytes for the current take.
func (r *Recorder) Audio() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var size int
	for _, c := range r.chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// Save uploads the current take and advances to the next sentence. After the
// last sentence it completes the session and enters StateComplete. An upload
// failure keeps the take so the participant can retry Save or Rerecord.
func (r *Recorder) Save(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return ErrInvalidState
	}
	if len(r.chunks) == 0 {
		r.mu.Unlock()
		return ErrNoAudio
	}
	sessionID := r.sessionID
	index := r.index
	sentence := ""
	if index < len(r.sentences) {
		sentence = r.sentences[index]
	}
	r.state = StateUploading
	r.mu.Unlock()

	audio := r.Audio()
	_, err := r.api.UploadRecording(ctx, sessionID, index, sentence, audio, r.mimeType)
	if err != nil {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.index++
	r.chunks = nil
	r.attempts = 0
	finished := r.index >= len(r.sentences)
	if finished {
		r.state = StateComplete
	} else {
		r.state = StateIdle
	}
	r.mu.Unlock()

	if finished {
		if _, err := r.api.CompleteSession(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// Rerecord discards the current take and returns to idle for another attempt.
func (r *Recorder) Rerecord() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopped {
		return ErrInvalidState
	}
	r.chunks = nil
	r.attempts++
	r.state = StateIdle
	return nil
}

// Abandon stops any in-progress capture, reports the early exit to the
// server, and resets the recorder. Safe to call from any state.
func (r *Recorder) Abandon(ctx context.Context) error {
	r.mu.Lock()
	state := r.state
	sessionID := r.sessionID
	drained := r.drained
	r.mu.Unlock()

	if state == StateRecording {
		r.device.Stop()
		<-drained
	}

	var err error
	if sessionID != "" && state != StateComplete {
		err = r.api.EndSession(ctx, sessionID)
	}

	r.mu.Lock()
	r.state = StateIdle
	r.sessionID = ""
	r.sentences = nil
	r.index = 0
	r.chunks = nil
	r.attempts = 0
	r.mu.Unlock()
	return err
}
