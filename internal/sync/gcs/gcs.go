// Package gcs stores attachments in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
)

// DefaultPublicBaseURL serves public objects as <base>/<bucket>/<key>.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// Config holds GCS configuration.
type Config struct {
	// CredentialsJSON is a service account key. Empty uses Application Default Credentials.
	CredentialsJSON string
	PublicBaseURL   string
	// Options are appended to the client options (endpoint overrides in tests).
	Options []option.ClientOption
}

// Store uploads blobs to GCS buckets.
type Store struct {
	client     *storage.Client
	publicBase string
}

// New creates a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	opts = append(opts, cfg.Options...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteNotConfigured, "create GCS client", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base = DefaultPublicBaseURL
	}
	return &Store{
		client:     client,
		publicBase: strings.TrimSuffix(base, "/"),
	}, nil
}

// UploadBlob writes data to bucket/key and returns the stored reference.
func (s *Store) UploadBlob(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	wc := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	// Single request upload; attachments are small.
	wc.ChunkSize = 0

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", apperrors.Wrap(apperrors.ErrBlobUpload, fmt.Sprintf("write gs://%s/%s", bucket, key), err)
	}
	if err := wc.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrBlobUpload, fmt.Sprintf("close gs://%s/%s", bucket, key), err)
	}
	return bucket + "/" + key, nil
}

// TestConnection checks the bucket is reachable.
func (s *Store) TestConnection(ctx context.Context, bucket string) error {
	if _, err := s.client.Bucket(bucket).Attrs(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteNotConfigured, fmt.Sprintf("gcs bucket %q not accessible", bucket), err)
	}
	return nil
}

// PublicURL returns the public URL of an object.
func (s *Store) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBase, bucket, key)
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
