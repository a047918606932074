package model

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrRecordingNotFound = errors.New("recording not found")
	ErrUnsupportedMedia  = errors.New("only audio files are allowed")
)

// ValidationError reports rejected input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
