package s3

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kimhsiao/damagelog/backend/internal/sync"
)

// SupabaseConfig holds Supabase Storage configuration.
type SupabaseConfig struct {
	ProjectURL string // e.g. "https://abcd.supabase.co"
	AccessKey  string // S3 access key id from the storage settings
	SecretKey  string
	Region     string
}

// NewSupabaseClient creates an S3 client for Supabase Storage.
//
// Uploads go to <project>/storage/v1/s3 (path style). Public objects are served
// from <project>/storage/v1/object/public/<bucket>/<key>.
func NewSupabaseClient(config *SupabaseConfig) (*sync.S3Client, error) {
	base, err := SupabaseProjectURL(config.ProjectURL)
	if err != nil {
		return nil, err
	}
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	return sync.NewS3Client(&sync.S3Config{
		Endpoint:       base + "/storage/v1/s3",
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         region,
		ForcePathStyle: true,
		PublicBaseURL:  base + "/storage/v1/object/public",
	})
}

// SupabaseProjectURL normalizes a project URL, accepting either the project root
// or its S3 endpoint.
func SupabaseProjectURL(raw string) (string, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	raw = strings.TrimSuffix(raw, "/storage/v1/s3")
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid Supabase project URL: %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
