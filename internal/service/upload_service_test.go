package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voicebank/internal/model"
)

type uploadFixture struct {
	svc         *UploadService
	sessions    *memSessionRepo
	recordings  *memRecordingRepo
	blobs       *memBlobStore
	cache       *memSessionCache
	stats       *memStatsCache
	broadcaster *recordingBroadcaster
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	f := &uploadFixture{
		sessions:    newMemSessionRepo(),
		recordings:  newMemRecordingRepo(),
		blobs:       newMemBlobStore(),
		cache:       newMemSessionCache(),
		stats:       newMemStatsCache(),
		broadcaster: &recordingBroadcaster{},
	}
	f.svc = NewUploadService(f.sessions, f.recordings, f.blobs, f.cache, f.stats, zap.NewNop())
	f.svc.SetBroadcaster(f.broadcaster)
	return f
}

func (f *uploadFixture) seedSession(t *testing.T, sentenceCount int) *model.Session {
	t.Helper()
	session := &model.Session{
		SessionID:     "test-session",
		Age:           30,
		Gender:        model.GenderOther,
		ConsentGiven:  true,
		SentenceCount: sentenceCount,
	}
	for i := 0; i < sentenceCount; i++ {
		session.Sentences = append(session.Sentences, fmt.Sprintf("Sentence number %d.", i))
	}
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return session
}

func uploadInput(sessionID string, index int, audio string) UploadInput {
	return UploadInput{
		SessionID:     sessionID,
		SentenceIndex: index,
		Audio:         strings.NewReader(audio),
		Size:          int64(len(audio)),
		MimeType:      "audio/webm",
		OriginalName:  "recording.webm",
	}
}

func TestUploadSave(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 3)

	result, err := f.svc.Save(ctx, uploadInput(session.SessionID, 0, "audio-bytes"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.CompletedRecordings)
	assert.False(t, result.FileID.IsZero())
	assert.Regexp(t, `^session_test-session_sentence_0_\d+\.webm$`, result.Filename)

	// The blob holds the uploaded bytes verbatim.
	stream, err := f.blobs.Open(ctx, result.FileID)
	require.NoError(t, err)
	defer stream.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(stream)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", buf.String())

	// Metadata references the blob and carries the stored sentence text.
	n, err := f.recordings.CountAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	rec := f.recordings.recordings[0]
	assert.Equal(t, result.FileID, rec.FileID)
	assert.Equal(t, "Sentence number 0.", rec.Sentence)
	assert.EqualValues(t, len("audio-bytes"), rec.FileSize)

	assert.True(t, f.broadcaster.seen(EventRecordingUploaded))
}

func TestUploadSaveValidation(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, uploadInput("", 0, "x"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = f.svc.Save(ctx, uploadInput("test-session", -1, "x"))
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	assert.Zero(t, f.blobs.count(), "rejected uploads must not write blobs")
}

func TestUploadSaveUnknownSession(t *testing.T) {
	f := newUploadFixture(t)

	_, err := f.svc.Save(context.Background(), uploadInput("no-such-session", 0, "x"))
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.Zero(t, f.blobs.count(), "session check must precede the blob write")
}

func TestUploadSaveResolvesSentenceServerSide(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 2)

	// The client-echoed text is ignored when the stored sequence covers the index.
	in := uploadInput(session.SessionID, 1, "x")
	in.Sentence = "tampered text"
	_, err := f.svc.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Sentence number 1.", f.recordings.recordings[0].Sentence)
}

func TestUploadSaveLegacySessionFallsBackToEcho(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()

	// A session persisted before sequences were stored.
	legacy := &model.Session{
		SessionID:     "legacy-session",
		Age:           40,
		Gender:        model.GenderFemale,
		ConsentGiven:  true,
		SentenceCount: 5,
	}
	require.NoError(t, f.sessions.Create(ctx, legacy))

	in := uploadInput(legacy.SessionID, 2, "x")
	in.Sentence = "echoed text"
	_, err := f.svc.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "echoed text", f.recordings.recordings[0].Sentence)

	in = uploadInput(legacy.SessionID, 3, "x")
	_, err = f.svc.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Unknown sentence", f.recordings.recordings[1].Sentence)
}

func TestUploadSaveCompletesSessionOnLastRecording(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 2)

	result, err := f.svc.Save(ctx, uploadInput(session.SessionID, 0, "a"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedRecordings)

	stored, err := f.sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)

	result, err = f.svc.Save(ctx, uploadInput(session.SessionID, 1, "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.CompletedRecordings)

	stored, err = f.sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, stored.Completed, "counter reaching the sentence count flips completion")
	assert.False(t, stored.EndedEarly)
	assert.InDelta(t, 0, stored.TotalDuration, 1, "duration measured from session creation")
}

func TestUploadSaveCompensatesBlobOnMetadataFailure(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 3)

	f.recordings.mu.Lock()
	f.recordings.createErr = errStorageDown
	f.recordings.mu.Unlock()

	_, err := f.svc.Save(ctx, uploadInput(session.SessionID, 0, "orphan"))
	require.Error(t, err)

	assert.Zero(t, f.blobs.count(), "orphaned blob must be deleted")
	f.blobs.mu.Lock()
	deletes := f.blobs.deletes
	f.blobs.mu.Unlock()
	assert.Equal(t, 1, deletes)

	stored, err := f.sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Zero(t, stored.CompletedRecordings, "failed uploads must not advance progress")
}

func TestUploadSaveConcurrent(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	const count = 20
	session := f.seedSession(t, count)

	var wg sync.WaitGroup
	errs := make([]error, count)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Save(ctx, uploadInput(session.SessionID, i, "x"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "upload %d", i)
	}

	stored, err := f.sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, count, stored.CompletedRecordings, "counter must count each upload exactly once")
	assert.True(t, stored.Completed)

	n, err := f.recordings.CountAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, count, n)
	assert.Equal(t, count, f.blobs.count())
}

func TestUploadSaveCounterNeverExceedsSentenceCount(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.seedSession(t, 2)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Save(ctx, uploadInput(session.SessionID, i%2, "x"))
		require.NoError(t, err)
	}

	stored, err := f.sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CompletedRecordings, "re-uploads past the cap must not grow the counter")
}
