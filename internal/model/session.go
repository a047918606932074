package model

import "time"

type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
	GenderUndisclosed Gender = "prefer-not-to-say"
)

// Genders enumerates the accepted gender categories.
var Genders = []Gender{GenderMale, GenderFemale, GenderOther, GenderUndisclosed}

func (g Gender) Valid() bool {
	for _, v := range Genders {
		if g == v {
			return true
		}
	}
	return false
}

// Demographic bounds enforced at session creation.
const (
	MinAge           = 18
	MaxAge           = 100
	MinSentenceCount = 1
	MaxSentenceCount = 50
)

// Session is one participant's demographic profile and recording progress.
// The sentence sequence chosen at creation is persisted so that uploads can
// resolve sentence text by index server-side.
type Session struct {
	SessionID           string    `json:"sessionId" bson:"sessionId"`
	Age                 int       `json:"age" bson:"age"`
	Gender              Gender    `json:"gender" bson:"gender"`
	ConsentGiven        bool      `json:"consentGiven" bson:"consentGiven"`
	SentenceCount       int       `json:"sentenceCount" bson:"sentenceCount"`
	Sentences           []string  `json:"sentences,omitempty" bson:"sentences,omitempty"`
	Completed           bool      `json:"completed" bson:"completed"`
	EndedEarly          bool      `json:"endedEarly,omitempty" bson:"endedEarly,omitempty"`
	CompletedRecordings int       `json:"completedRecordings" bson:"completedRecordings"`
	TotalDuration       int64     `json:"totalDuration" bson:"totalDuration"`
	IPAddress           string    `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent           string    `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	CreatedAt           time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Validate checks the demographic and consent constraints.
func (s *Session) Validate() error {
	if s.Age < MinAge || s.Age > MaxAge {
		return &ValidationError{Field: "age", Message: "must be between 18 and 100"}
	}
	if !s.Gender.Valid() {
		return &ValidationError{Field: "gender", Message: "unknown gender category"}
	}
	if !s.ConsentGiven {
		return &ValidationError{Field: "consentGiven", Message: "consent is required"}
	}
	if s.SentenceCount < MinSentenceCount || s.SentenceCount > MaxSentenceCount {
		return &ValidationError{Field: "sentenceCount", Message: "must be between 1 and 50"}
	}
	return nil
}

// CompletionRate returns the percentage of sentences recorded so far.
func (s *Session) CompletionRate() float64 {
	if s.SentenceCount == 0 {
		return 0
	}
	return float64(s.CompletedRecordings) / float64(s.SentenceCount) * 100
}

// SentenceAt resolves the text for a sentence index from the stored sequence.
// Sessions created before sequences were persisted have none; callers fall
// back to the client-echoed text for those.
func (s *Session) SentenceAt(index int) (string, bool) {
	if index < 0 || index >= len(s.Sentences) {
		return "", false
	}
	return s.Sentences[index], true
}

// SessionRef is the minimal projection used by the listing filter UI.
type SessionRef struct {
	SessionID string    `json:"sessionId" bson:"sessionId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
