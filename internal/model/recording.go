package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultMimeType = "audio/webm"

// Recording is the metadata for one uploaded audio sample, referencing its
// blob in GridFS by FileID.
type Recording struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID     string             `json:"sessionId" bson:"sessionId"`
	SentenceIndex int                `json:"sentenceIndex" bson:"sentenceIndex"`
	Sentence      string             `json:"sentence" bson:"sentence"`
	FileID        primitive.ObjectID `json:"fileId" bson:"fileId"`
	Filename      string             `json:"filename" bson:"filename"`
	FileSize      int64              `json:"fileSize" bson:"fileSize"`
	Duration      float64            `json:"duration,omitempty" bson:"duration,omitempty"`
	MimeType      string             `json:"mimeType" bson:"mimeType"`
	Quality       *Quality           `json:"quality,omitempty" bson:"quality,omitempty"`
	Metadata      RecordingMetadata  `json:"metadata" bson:"metadata"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
}

type Quality struct {
	Bitrate    int `json:"bitrate,omitempty" bson:"bitrate,omitempty"`
	SampleRate int `json:"sampleRate,omitempty" bson:"sampleRate,omitempty"`
	Channels   int `json:"channels,omitempty" bson:"channels,omitempty"`
}

type RecordingMetadata struct {
	RecordingAttempts int    `json:"recordingAttempts" bson:"recordingAttempts"`
	DeviceInfo        string `json:"deviceInfo,omitempty" bson:"deviceInfo,omitempty"`
	BrowserInfo       string `json:"browserInfo,omitempty" bson:"browserInfo,omitempty"`
}

// Validate checks the constraints a recording must satisfy before insert.
func (r *Recording) Validate() error {
	if r.SessionID == "" {
		return &ValidationError{Field: "sessionId", Message: "session id is required"}
	}
	if r.SentenceIndex < 0 {
		return &ValidationError{Field: "sentenceIndex", Message: "must be zero or positive"}
	}
	if r.FileID.IsZero() {
		return &ValidationError{Field: "fileId", Message: "blob reference is required"}
	}
	return nil
}

// SessionInfo is the subset of session fields attached to a joined recording.
type SessionInfo struct {
	Age       int       `json:"age" bson:"age"`
	Gender    Gender    `json:"gender" bson:"gender"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// RecordingWithSession is a recording augmented with its owning session's
// public fields. Session is nil when the session record is missing.
type RecordingWithSession struct {
	Recording `bson:",inline"`
	Session   *SessionInfo `json:"session,omitempty" bson:"session,omitempty"`
}

// BlobMetadata is stored alongside the raw bytes in GridFS.
type BlobMetadata struct {
	SessionID     string    `bson:"sessionId"`
	SentenceIndex int       `bson:"sentenceIndex"`
	Sentence      string    `bson:"sentence"`
	UploadedAt    time.Time `bson:"uploadedAt"`
	OriginalName  string    `bson:"originalName"`
	MimeType      string    `bson:"mimeType"`
}
