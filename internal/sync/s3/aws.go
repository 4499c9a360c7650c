// Package s3 builds S3 clients for the supported object storage providers.
package s3

import (
	"fmt"
	"regexp"

	"github.com/kimhsiao/damagelog/backend/internal/sync"
)

var awsRegionPattern = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`)

// AWSConfig holds AWS S3-specific configuration.
type AWSConfig struct {
	AccessKey     string
	SecretKey     string
	Region        string // Default: us-east-1
	PublicBaseURL string // Optional CDN in front of the buckets
}

// NewAWSClient creates an S3 client for AWS.
// AWS uses virtual-host style URLs (bucket.s3.<region>.amazonaws.com).
func NewAWSClient(config *AWSConfig) (*sync.S3Client, error) {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}
	endpoint, err := AWSEndpointForRegion(region)
	if err != nil {
		return nil, err
	}

	return sync.NewS3Client(&sync.S3Config{
		Endpoint:       "https://" + endpoint,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         region,
		ForcePathStyle: false,
		PublicBaseURL:  config.PublicBaseURL,
	})
}

// AWSEndpointForRegion returns the S3 endpoint host for a region.
func AWSEndpointForRegion(region string) (string, error) {
	if !awsRegionPattern.MatchString(region) {
		return "", fmt.Errorf("unknown AWS region: %s", region)
	}
	if region == "us-east-1" {
		return "s3.amazonaws.com", nil
	}
	return fmt.Sprintf("s3.%s.amazonaws.com", region), nil
}
