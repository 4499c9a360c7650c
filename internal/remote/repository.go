package remote

import (
	"context"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// RecordStore inserts rows idempotently by primary key.
type RecordStore interface {
	InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error)
}

// BlobStore stores attachment bytes.
type BlobStore interface {
	UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	PublicURL(bucket, path string) string
}

// BucketChecker verifies that a bucket exists and accepts the credentials.
type BucketChecker interface {
	TestConnection(ctx context.Context, bucket string) error
}

// Pinger verifies the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Repository combines a record store and a blob store into one remote backend.
type Repository struct {
	records RecordStore
	blobs   BlobStore
}

// NewRepository creates a Repository.
func NewRepository(records RecordStore, blobs BlobStore) *Repository {
	return &Repository{records: records, blobs: blobs}
}

// InsertRecord inserts a row.
func (r *Repository) InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error) {
	return r.records.InsertRecord(ctx, table, payload)
}

// UploadBlob stores data at bucket/path.
func (r *Repository) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	return r.blobs.UploadBlob(ctx, bucket, path, data, contentType)
}

// PublicURL returns the public URL of bucket/path.
func (r *Repository) PublicURL(bucket, path string) string {
	return r.blobs.PublicURL(bucket, path)
}

// Check verifies the record store and each bucket, for stores that support it.
func (r *Repository) Check(ctx context.Context, buckets ...string) error {
	if p, ok := r.records.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	if bc, ok := r.blobs.(BucketChecker); ok {
		for _, b := range buckets {
			if err := bc.TestConnection(ctx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Disabled is the remote used when no backend is configured.
// Capture keeps working; every sync attempt fails and the entry is retried later.
type Disabled struct{}

// InsertRecord always fails.
func (Disabled) InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error) {
	return nil, apperrors.New(apperrors.ErrRemoteNotConfigured, "remote database is not configured")
}

// UploadBlob always fails.
func (Disabled) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	return "", apperrors.New(apperrors.ErrRemoteNotConfigured, "blob storage is not configured")
}

// PublicURL returns an empty string.
func (Disabled) PublicURL(bucket, path string) string {
	return ""
}

// Check always fails.
func (Disabled) Check(ctx context.Context, buckets ...string) error {
	return apperrors.New(apperrors.ErrRemoteNotConfigured, "remote database is not configured")
}
