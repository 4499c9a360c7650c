package s3

import (
	"fmt"
	"strings"

	"github.com/kimhsiao/damagelog/backend/internal/sync"
)

// MinIOConfig holds MinIO-specific configuration.
type MinIOConfig struct {
	Endpoint      string // e.g. "localhost:9000" or "https://minio.example.com"
	AccessKey     string
	SecretKey     string
	UseSSL        bool // Scheme used when Endpoint has none
	PublicBaseURL string
}

// NewMinIOClient creates an S3 client for MinIO.
// MinIO requires path-style URLs (endpoint/bucket/key).
func NewMinIOClient(config *MinIOConfig) (*sync.S3Client, error) {
	endpoint, err := ParseMinIOEndpoint(config.Endpoint, config.UseSSL)
	if err != nil {
		return nil, err
	}

	return sync.NewS3Client(&sync.S3Config{
		Endpoint:       endpoint,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "us-east-1", // MinIO ignores regions but signing needs one
		ForcePathStyle: true,
		PublicBaseURL:  config.PublicBaseURL,
	})
}

// ParseMinIOEndpoint adds a scheme when missing and drops a trailing slash.
func ParseMinIOEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}

	return strings.TrimSuffix(endpoint, "/"), nil
}
