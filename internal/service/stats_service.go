package service

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"

	"voicebank/internal/cache"
	"voicebank/internal/model"
	"voicebank/internal/repository"
)

// StatsService assembles the aggregate view over sessions and recordings.
type StatsService struct {
	sessions   repository.SessionRepo
	recordings repository.RecordingRepo
	statsCache cache.StatsCache
	logger     *zap.Logger
	startedAt  time.Time
}

func NewStatsService(
	sessions repository.SessionRepo,
	recordings repository.RecordingRepo,
	statsCache cache.StatsCache,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		sessions:   sessions,
		recordings: recordings,
		statsCache: statsCache,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Overview returns the /api/stats payload, cached for a short window.
func (s *StatsService) Overview(ctx context.Context) (*model.StatsOverview, error) {
	cached, err := s.statsCache.Get(ctx)
	if err != nil {
		s.logger.Warn("stats cache lookup failed", zap.Error(err))
	}
	if cached != nil {
		cached.System = s.systemStats()
		return cached, nil
	}

	sessionAgg, err := s.sessions.AggregateStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session stats: %w", err)
	}
	recordingAgg, err := s.recordings.AggregateStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recording stats: %w", err)
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	recentSessions, err := s.sessions.CountCreatedSince(ctx, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent sessions: %w", err)
	}
	recentRecordings, err := s.recordings.CountCreatedSince(ctx, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent recordings: %w", err)
	}

	stats := &model.StatsOverview{
		Sessions: model.SessionStats{
			Total:              sessionAgg.TotalSessions,
			Completed:          sessionAgg.CompletedSessions,
			RecentWeek:         recentSessions,
			AverageAge:         int64(math.Round(sessionAgg.AverageAge)),
			GenderDistribution: sessionAgg.GenderDistribution,
		},
		Recordings: model.RecordingStats{
			Total:           recordingAgg.TotalRecordings,
			RecentWeek:      recentRecordings,
			TotalFileSize:   recordingAgg.TotalFileSize,
			AverageFileSize: int64(math.Round(recordingAgg.AverageFileSize)),
		},
		System: s.systemStats(),
	}

	if err := s.statsCache.Set(ctx, stats); err != nil {
		s.logger.Warn("failed to cache stats", zap.Error(err))
	}
	return stats, nil
}

// Uptime reports seconds since the service started.
func (s *StatsService) Uptime() int64 {
	return int64(time.Since(s.startedAt).Seconds())
}

func (s *StatsService) systemStats() model.SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return model.SystemStats{
		Uptime:     s.Uptime(),
		AllocBytes: mem.Alloc,
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
}
