package service

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"voicebank/internal/model"
	"voicebank/internal/repository"
	"voicebank/internal/storage"
)

// RecordingService serves the operator listing and playback endpoints.
type RecordingService struct {
	recordings repository.RecordingRepo
	sessions   repository.SessionRepo
	blobs      storage.BlobStore
	logger     *zap.Logger
}

func NewRecordingService(
	recordings repository.RecordingRepo,
	sessions repository.SessionRepo,
	blobs storage.BlobStore,
	logger *zap.Logger,
) *RecordingService {
	return &RecordingService{
		recordings: recordings,
		sessions:   sessions,
		blobs:      blobs,
		logger:     logger,
	}
}

// Listing is the response of GET /api/recordings.
type Listing struct {
	Recordings []*model.RecordingWithSession `json:"recordings"`
	Sessions   []*model.SessionRef           `json:"sessions"`
}

// List returns all recordings joined with session info plus the session refs
// used by the filter dropdown.
func (s *RecordingService) List(ctx context.Context) (*Listing, error) {
	recordings, err := s.recordings.ListWithSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recordings: %w", err)
	}
	refs, err := s.sessions.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	if recordings == nil {
		recordings = []*model.RecordingWithSession{}
	}
	if refs == nil {
		refs = []*model.SessionRef{}
	}
	return &Listing{Recordings: recordings, Sessions: refs}, nil
}

// Open returns a recording's metadata and a stream of its audio bytes. The
// caller must close the stream.
func (s *RecordingService) Open(ctx context.Context, recordingID string) (*model.Recording, io.ReadCloser, error) {
	recording, err := s.recordings.GetByID(ctx, recordingID)
	if err != nil {
		return nil, nil, err
	}
	stream, err := s.blobs.Open(ctx, recording.FileID)
	if err != nil {
		return nil, nil, err
	}
	return recording, stream, nil
}
