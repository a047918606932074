package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voicebank/internal/model"
)

// BlobStore holds raw audio bytes addressed by an opaque identifier.
type BlobStore interface {
	// Upload streams src into a new blob and returns its identifier.
	Upload(ctx context.Context, filename string, meta model.BlobMetadata, src io.Reader) (primitive.ObjectID, error)
	// Open returns a byte source for the blob, or model.ErrRecordingNotFound
	// if the identifier is unknown.
	Open(ctx context.Context, fileID primitive.ObjectID) (io.ReadCloser, error)
	// Delete removes a blob. Used to compensate a failed metadata write.
	Delete(ctx context.Context, fileID primitive.ObjectID) error
	Ping(ctx context.Context) error
}

type gridFSStore struct {
	bucket *gridfs.Bucket
	db     *mongo.Database
}

// NewGridFSStore creates a blob store over a GridFS bucket named "recordings".
func NewGridFSStore(db *mongo.Database) (BlobStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("recordings"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gridfs bucket: %w", err)
	}
	return &gridFSStore{bucket: bucket, db: db}, nil
}

func (s *gridFSStore) Upload(ctx context.Context, filename string, meta model.BlobMetadata, src io.Reader) (primitive.ObjectID, error) {
	// The v1 stream API takes no context; propagate the deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		s.bucket.SetWriteDeadline(deadline)
	}

	opts := options.GridFSUpload().SetMetadata(meta)
	fileID, err := s.bucket.UploadFromStream(filename, src, opts)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to upload blob %s: %w", filename, err)
	}
	return fileID, nil
}

func (s *gridFSStore) Open(ctx context.Context, fileID primitive.ObjectID) (io.ReadCloser, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.bucket.SetReadDeadline(deadline)
	}

	stream, err := s.bucket.OpenDownloadStream(fileID)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, model.ErrRecordingNotFound
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", fileID.Hex(), err)
	}
	return stream, nil
}

func (s *gridFSStore) Delete(ctx context.Context, fileID primitive.ObjectID) error {
	if err := s.bucket.DeleteContext(ctx, fileID); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete blob %s: %w", fileID.Hex(), err)
	}
	return nil
}

func (s *gridFSStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}
