package service

// Event types pushed to the operator live feed.
const (
	EventSessionStarted    = "session_started"
	EventRecordingUploaded = "recording_uploaded"
	EventSessionCompleted  = "session_completed"
	EventSessionEnded      = "session_ended"
)

// Broadcaster fans events out to connected operator dashboards. The ws hub
// implements it; services treat it as fire-and-forget.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}
