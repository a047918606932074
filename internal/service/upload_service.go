package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"voicebank/internal/cache"
	"voicebank/internal/model"
	"voicebank/internal/repository"
	"voicebank/internal/storage"
)

// UploadService coordinates the blob write, the metadata write, and the
// session progress counter for one recording upload.
type UploadService struct {
	sessions     repository.SessionRepo
	recordings   repository.RecordingRepo
	blobs        storage.BlobStore
	sessionCache cache.SessionCache
	statsCache   cache.StatsCache
	logger       *zap.Logger
	broadcaster  Broadcaster
}

func NewUploadService(
	sessions repository.SessionRepo,
	recordings repository.RecordingRepo,
	blobs storage.BlobStore,
	sessionCache cache.SessionCache,
	statsCache cache.StatsCache,
	logger *zap.Logger,
) *UploadService {
	return &UploadService{
		sessions:     sessions,
		recordings:   recordings,
		blobs:        blobs,
		sessionCache: sessionCache,
		statsCache:   statsCache,
		logger:       logger,
	}
}

// SetBroadcaster injects the operator feed.
func (s *UploadService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// UploadInput carries one recording upload.
type UploadInput struct {
	SessionID     string
	SentenceIndex int
	Sentence      string
	Audio         io.Reader
	Size          int64
	MimeType      string
	OriginalName  string
	BrowserInfo   string
}

// UploadResult is returned to the client after a successful upload.
type UploadResult struct {
	Filename            string
	FileID              primitive.ObjectID
	CompletedRecordings int
}

// Save runs the upload sequence: verify session, stream blob, insert
// metadata, advance the counter. Blob and metadata writes are not
// transactional; a failed metadata insert triggers a best-effort blob delete.
func (s *UploadService) Save(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.SessionID == "" {
		return nil, &model.ValidationError{Field: "sessionId", Message: "session id is required"}
	}
	if in.SentenceIndex < 0 {
		return nil, &model.ValidationError{Field: "sentenceIndex", Message: "must be zero or positive"}
	}

	session, err := s.getSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	// The stored sequence is authoritative; the client-echoed text only
	// covers sessions created before sequences were persisted.
	sentence, ok := session.SentenceAt(in.SentenceIndex)
	if !ok {
		sentence = in.Sentence
		if sentence == "" {
			sentence = "Unknown sentence"
		}
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}

	filename := fmt.Sprintf("session_%s_sentence_%d_%d.webm",
		in.SessionID, in.SentenceIndex, time.Now().UnixMilli())

	fileID, err := s.blobs.Upload(ctx, filename, model.BlobMetadata{
		SessionID:     in.SessionID,
		SentenceIndex: in.SentenceIndex,
		Sentence:      sentence,
		UploadedAt:    time.Now(),
		OriginalName:  in.OriginalName,
		MimeType:      mimeType,
	}, in.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to store audio: %w", err)
	}

	recording := &model.Recording{
		SessionID:     in.SessionID,
		SentenceIndex: in.SentenceIndex,
		Sentence:      sentence,
		FileID:        fileID,
		Filename:      filename,
		FileSize:      in.Size,
		MimeType:      mimeType,
		Metadata: model.RecordingMetadata{
			RecordingAttempts: 1,
			BrowserInfo:       in.BrowserInfo,
		},
	}
	if err := s.recordings.Create(ctx, recording); err != nil {
		// Compensate the orphaned blob; a crash right here still leaks it.
		if delErr := s.blobs.Delete(ctx, fileID); delErr != nil {
			s.logger.Error("failed to delete orphaned blob",
				zap.String("fileId", fileID.Hex()), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save recording metadata: %w", err)
	}

	updated, err := s.sessions.IncrementCompleted(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update session progress: %w", err)
	}

	s.afterMutation(ctx, in.SessionID)

	s.logger.Info("recording saved",
		zap.String("sessionId", in.SessionID),
		zap.Int("sentenceIndex", in.SentenceIndex),
		zap.String("filename", filename),
		zap.Int64("fileSize", in.Size),
		zap.Int("completedRecordings", updated.CompletedRecordings),
		zap.Int("sentenceCount", updated.SentenceCount))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventRecordingUploaded, map[string]interface{}{
			"sessionId":           in.SessionID,
			"sentenceIndex":       in.SentenceIndex,
			"completedRecordings": updated.CompletedRecordings,
			"sentenceCount":       updated.SentenceCount,
		})
	}

	return &UploadResult{
		Filename:            filename,
		FileID:              fileID,
		CompletedRecordings: updated.CompletedRecordings,
	}, nil
}

func (s *UploadService) getSession(ctx context.Context, sessionID string) (*model.Session, error) {
	cached, err := s.sessionCache.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session cache lookup failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}
	return s.sessions.GetBySessionID(ctx, sessionID)
}

func (s *UploadService) afterMutation(ctx context.Context, sessionID string) {
	if err := s.sessionCache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to invalidate session cache", zap.String("sessionId", sessionID), zap.Error(err))
	}
	if err := s.statsCache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}
