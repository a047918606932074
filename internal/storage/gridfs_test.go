package storage

// Integration tests against a real MongoDB. Skipped unless MONGODB_URI is set,
// e.g. MONGODB_URI=mongodb://localhost:27017 go test ./internal/storage/...

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voicebank/internal/model"
)

func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("voicebank_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db.Drop(ctx)
		client.Disconnect(ctx)
	})
	return db
}

func TestGridFSStoreRoundTrip(t *testing.T) {
	db := testDatabase(t)
	store, err := NewGridFSStore(db)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := "fake-webm-payload"
	fileID, err := store.Upload(ctx, "session_s1_sentence_0_1.webm", model.BlobMetadata{
		SessionID:     "s1",
		SentenceIndex: 0,
		Sentence:      "First sentence.",
		UploadedAt:    time.Now(),
		MimeType:      "audio/webm",
	}, strings.NewReader(payload))
	require.NoError(t, err)
	require.False(t, fileID.IsZero())

	stream, err := store.Open(ctx, fileID)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, payload, string(data), "stored bytes must round-trip verbatim")

	require.NoError(t, store.Ping(ctx))
}

func TestGridFSStoreOpenUnknown(t *testing.T) {
	db := testDatabase(t)
	store, err := NewGridFSStore(db)
	require.NoError(t, err)

	_, err = store.Open(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, model.ErrRecordingNotFound)
}

func TestGridFSStoreDelete(t *testing.T) {
	db := testDatabase(t)
	store, err := NewGridFSStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	fileID, err := store.Upload(ctx, "orphan.webm", model.BlobMetadata{SessionID: "s1"}, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, fileID))
	_, err = store.Open(ctx, fileID)
	assert.ErrorIs(t, err, model.ErrRecordingNotFound)

	// Deleting an already-gone blob is tolerated; compensation may race.
	assert.NoError(t, store.Delete(ctx, fileID))
	assert.NoError(t, store.Delete(ctx, primitive.NewObjectID()))
}
