package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"voicebank/internal/model"
	"voicebank/internal/repository"
	"voicebank/internal/storage"
)

// In-memory doubles for the Mongo repositories, the blob store, and the Redis
// caches. They mirror the guarded-update semantics of the real repositories so
// the concurrency tests exercise the same invariants.

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

var _ repository.SessionRepo = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.Sentences = append([]string(nil), s.Sentences...)
	return &c
}

func (r *memSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	r.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (r *memSessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *memSessionRepo) IncrementCompleted(ctx context.Context, sessionID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	// Same guard as the Mongo filter: never past the sentence count.
	if s.CompletedRecordings < s.SentenceCount {
		s.CompletedRecordings++
		s.UpdatedAt = time.Now()
	}
	if s.CompletedRecordings >= s.SentenceCount && !s.Completed {
		s.Completed = true
		s.TotalDuration = int64(time.Since(s.CreatedAt).Seconds())
	}
	return cloneSession(s), nil
}

func (r *memSessionRepo) MarkCompleted(ctx context.Context, sessionID string) (*model.Session, error) {
	return r.mark(sessionID, false)
}

func (r *memSessionRepo) MarkEnded(ctx context.Context, sessionID string) (*model.Session, error) {
	return r.mark(sessionID, true)
}

func (r *memSessionRepo) mark(sessionID string, endedEarly bool) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	s.Completed = true
	s.TotalDuration = int64(time.Since(s.CreatedAt).Seconds())
	if endedEarly {
		s.EndedEarly = true
	}
	s.UpdatedAt = time.Now()
	return cloneSession(s), nil
}

func (r *memSessionRepo) CountAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}

func (r *memSessionRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) ListRefs(ctx context.Context) ([]*model.SessionRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make([]*model.SessionRef, 0, len(r.sessions))
	for _, s := range r.sessions {
		refs = append(refs, &model.SessionRef{SessionID: s.SessionID, CreatedAt: s.CreatedAt})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].CreatedAt.After(refs[j].CreatedAt) })
	return refs, nil
}

func (r *memSessionRepo) AggregateStats(ctx context.Context) (*model.SessionAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := &model.SessionAggregate{GenderDistribution: make(map[model.Gender]int64)}
	var ageSum int64
	for _, s := range r.sessions {
		agg.TotalSessions++
		if s.Completed {
			agg.CompletedSessions++
		}
		ageSum += int64(s.Age)
		agg.GenderDistribution[s.Gender]++
	}
	if agg.TotalSessions > 0 {
		agg.AverageAge = float64(ageSum) / float64(agg.TotalSessions)
	}
	return agg, nil
}

type memRecordingRepo struct {
	mu         sync.Mutex
	recordings []*model.Recording
	createErr  error
}

var _ repository.RecordingRepo = (*memRecordingRepo)(nil)

func newMemRecordingRepo() *memRecordingRepo {
	return &memRecordingRepo{}
}

func (r *memRecordingRepo) Create(ctx context.Context, recording *model.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if err := recording.Validate(); err != nil {
		return err
	}
	if recording.CreatedAt.IsZero() {
		recording.CreatedAt = time.Now()
	}
	if recording.MimeType == "" {
		recording.MimeType = model.DefaultMimeType
	}
	recording.ID = primitive.NewObjectID()
	clone := *recording
	r.recordings = append(r.recordings, &clone)
	return nil
}

func (r *memRecordingRepo) GetByID(ctx context.Context, id string) (*model.Recording, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrRecordingNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recordings {
		if rec.ID == oid {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, model.ErrRecordingNotFound
}

func (r *memRecordingRepo) ListWithSessions(ctx context.Context) ([]*model.RecordingWithSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.RecordingWithSession, 0, len(r.recordings))
	for _, rec := range r.recordings {
		clone := *rec
		out = append(out, &model.RecordingWithSession{Recording: clone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRecordingRepo) CountAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.recordings)), nil
}

func (r *memRecordingRepo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.recordings {
		if !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRecordingRepo) AggregateStats(ctx context.Context) (*model.RecordingAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := &model.RecordingAggregate{}
	for _, rec := range r.recordings {
		agg.TotalRecordings++
		agg.TotalFileSize += rec.FileSize
	}
	if agg.TotalRecordings > 0 {
		agg.AverageFileSize = float64(agg.TotalFileSize) / float64(agg.TotalRecordings)
	}
	return agg, nil
}

type memBlobStore struct {
	mu      sync.Mutex
	blobs   map[primitive.ObjectID][]byte
	deletes int
}

var _ storage.BlobStore = (*memBlobStore)(nil)

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[primitive.ObjectID][]byte)}
}

func (s *memBlobStore) Upload(ctx context.Context, filename string, meta model.BlobMetadata, src io.Reader) (primitive.ObjectID, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id := primitive.NewObjectID()
	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()
	return id, nil
}

func (s *memBlobStore) Open(ctx context.Context, fileID primitive.ObjectID) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.blobs[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, model.ErrRecordingNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) Delete(ctx context.Context, fileID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, fileID)
	s.deletes++
	return nil
}

func (s *memBlobStore) Ping(ctx context.Context) error { return nil }

func (s *memBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type memSessionCache struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	getErr   error
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{sessions: make(map[string]*model.Session)}
}

func (c *memSessionCache) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (c *memSessionCache) Set(ctx context.Context, session *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (c *memSessionCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

type memStatsCache struct {
	mu    sync.Mutex
	stats *model.StatsOverview
}

func newMemStatsCache() *memStatsCache { return &memStatsCache{} }

func (c *memStatsCache) Get(ctx context.Context) (*model.StatsOverview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		return nil, nil
	}
	clone := *c.stats
	return &clone, nil
}

func (c *memStatsCache) Set(ctx context.Context, stats *model.StatsOverview) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *stats
	c.stats = &clone
	return nil
}

func (c *memStatsCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = nil
	return nil
}

// recordingBroadcaster collects broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) seen(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

var errStorageDown = errors.New("storage unavailable")
