package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicebank/internal/cache"
	"voicebank/internal/model"
	"voicebank/internal/repository"
	"voicebank/internal/sentences"
)

// DefaultSentenceCount is used when a start request omits the count.
const DefaultSentenceCount = 10

// SessionService handles the participant session lifecycle.
type SessionService struct {
	sessions     repository.SessionRepo
	pool         *sentences.Pool
	sessionCache cache.SessionCache
	statsCache   cache.StatsCache
	logger       *zap.Logger
	broadcaster  Broadcaster
}

func NewSessionService(
	sessions repository.SessionRepo,
	pool *sentences.Pool,
	sessionCache cache.SessionCache,
	statsCache cache.StatsCache,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:     sessions,
		pool:         pool,
		sessionCache: sessionCache,
		statsCache:   statsCache,
		logger:       logger,
	}
}

// SetBroadcaster injects the operator feed.
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// StartInput carries the demographics from a session start request.
type StartInput struct {
	Age           int
	Gender        string
	SentenceCount int
	ConsentGiven  bool
	IPAddress     string
	UserAgent     string
}

// Sentences returns a random selection from the pool, clamped to its size.
func (s *SessionService) Sentences(count int) []string {
	return s.pool.Select(count)
}

// Start validates the demographics, selects the sentence sequence, and
// persists a new session. The sequence is stored on the session so uploads
// resolve sentence text by index server-side.
func (s *SessionService) Start(ctx context.Context, in StartInput) (*model.Session, error) {
	if in.SentenceCount == 0 {
		in.SentenceCount = DefaultSentenceCount
	}

	session := &model.Session{
		SessionID:     uuid.NewString(),
		Age:           in.Age,
		Gender:        model.Gender(in.Gender),
		ConsentGiven:  in.ConsentGiven,
		SentenceCount: in.SentenceCount,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	session.Sentences = s.pool.Select(in.SentenceCount)
	session.SentenceCount = len(session.Sentences)

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if err := s.sessionCache.Set(ctx, session); err != nil {
		s.logger.Warn("failed to cache session", zap.String("sessionId", session.SessionID), zap.Error(err))
	}

	s.logger.Info("session started",
		zap.String("sessionId", session.SessionID),
		zap.Int("age", session.Age),
		zap.String("gender", string(session.Gender)),
		zap.Int("sentenceCount", session.SentenceCount))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventSessionStarted, map[string]interface{}{
			"sessionId":     session.SessionID,
			"sentenceCount": session.SentenceCount,
		})
	}

	return session, nil
}

// Get looks a session up, cache first.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	cached, err := s.sessionCache.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session cache lookup failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	session, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionCache.Set(ctx, session); err != nil {
		s.logger.Warn("failed to cache session", zap.String("sessionId", sessionID), zap.Error(err))
	}
	return session, nil
}

// Complete explicitly marks a session completed and computes its duration.
func (s *SessionService) Complete(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.MarkCompleted(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, sessionID)

	s.logger.Info("session completed",
		zap.String("sessionId", sessionID),
		zap.Int("completedRecordings", session.CompletedRecordings),
		zap.Int("sentenceCount", session.SentenceCount))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventSessionCompleted, map[string]interface{}{
			"sessionId":           sessionID,
			"completedRecordings": session.CompletedRecordings,
		})
	}
	return session, nil
}

// End marks a session terminated early by the participant.
func (s *SessionService) End(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.MarkEnded(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, sessionID)

	s.logger.Info("session ended early", zap.String("sessionId", sessionID))

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventSessionEnded, map[string]interface{}{
			"sessionId": sessionID,
		})
	}
	return session, nil
}

func (s *SessionService) afterMutation(ctx context.Context, sessionID string) {
	if err := s.sessionCache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to invalidate session cache", zap.String("sessionId", sessionID), zap.Error(err))
	}
	if err := s.statsCache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", zap.Error(err))
	}
}
