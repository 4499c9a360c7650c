package sync

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
)

const (
	sigAlgorithm  = "AWS4-HMAC-SHA256"
	signedHeaders = "host;x-amz-content-sha256;x-amz-date"
	maxErrorBody  = 256
)

// S3Config holds S3 connection configuration.
type S3Config struct {
	Endpoint       string // scheme://host[:port]
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool   // Use path-style URLs (minio, supabase)
	PublicBaseURL  string // Public object URL prefix; bucket and key are appended
}

// S3Client uploads attachments to S3-compatible storage.
type S3Client struct {
	config     *S3Config
	endpoint   *url.URL
	httpClient *http.Client
	now        func() time.Time
}

// NewS3Client creates a new S3Client.
func NewS3Client(config *S3Config) (*S3Client, error) {
	endpoint := strings.TrimSuffix(config.Endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("invalid S3 endpoint %q", config.Endpoint), err)
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	return &S3Client{
		config:   config,
		endpoint: u,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		now: time.Now,
	}, nil
}

// Config returns the client configuration.
func (c *S3Client) Config() *S3Config {
	return c.config
}

// UploadBlob stores data under bucket/key and returns the stored reference.
func (c *S3Client) UploadBlob(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := c.newRequest(ctx, http.MethodPut, bucket, key, data)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(c.categorizeError(err), "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperrors.New(c.categorizeHTTPError(resp.StatusCode, string(body)),
			fmt.Sprintf("upload failed with status %d: %s", resp.StatusCode, truncateString(string(body), maxErrorBody)))
	}

	return bucket + "/" + key, nil
}

// TestConnection checks that the bucket exists and the credentials are accepted.
func (c *S3Client) TestConnection(ctx context.Context, bucket string) error {
	req, err := c.newRequest(ctx, http.MethodHead, bucket, "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(c.categorizeError(err), "head bucket failed", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperrors.New(c.categorizeHTTPError(resp.StatusCode, ""),
			fmt.Sprintf("head bucket %s failed with status %d", bucket, resp.StatusCode))
	}
	return nil
}

// PublicURL returns the public URL of an object.
func (c *S3Client) PublicURL(bucket, key string) string {
	if c.config.PublicBaseURL != "" {
		return strings.TrimSuffix(c.config.PublicBaseURL, "/") + "/" + bucket + "/" + escapePath(key)
	}
	return c.objectURL(bucket, key).String()
}

// objectURL builds the request URL for bucket/key.
func (c *S3Client) objectURL(bucket, key string) *url.URL {
	u := *c.endpoint
	basePath := strings.TrimSuffix(u.Path, "/")
	if c.config.ForcePathStyle {
		// Path-style: http://endpoint/bucket/key
		u.Path = basePath + "/" + bucket
	} else {
		// Virtual-host-style: http://bucket.endpoint/key
		u.Host = bucket + "." + u.Host
		u.Path = basePath
	}
	if key != "" {
		u.Path += "/" + key
	}
	u.RawPath = escapePath(u.Path)
	return &u
}

// newRequest creates a signed S3 request.
func (c *S3Client) newRequest(ctx context.Context, method, bucket, key string, body []byte) (*http.Request, error) {
	u := c.objectURL(bucket, key)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}

	c.sign(req, hashHex(body), c.now().UTC())
	return req, nil
}

// sign adds AWS Signature V4 headers to req.
func (c *S3Client) sign(req *http.Request, payloadHash string, ts time.Time) {
	amzDate := ts.Format("20060102T150405Z")
	dateStamp := ts.Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	canonicalHeaders := "host:" + req.URL.Host + "\n" +
		"x-amz-content-sha256:" + payloadHash + "\n" +
		"x-amz-date:" + amzDate + "\n"

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)
	stringToSign := strings.Join([]string{
		sigAlgorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+c.config.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigAlgorithm, c.config.AccessKey, scope, signedHeaders, signature))
}

func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

func canonicalQuery(u *url.URL) string {
	q := u.Query()
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(parts, "&")
}

// escapePath encodes each path segment per the SigV4 rules.
func escapePath(p string) string {
	return uriEncode(p, false)
}

// uriEncode percent-encodes everything except unreserved characters.
// Slashes are kept unless encodeSlash is set.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '_', ch == '.', ch == '~':
			b.WriteByte(ch)
		case ch == '/' && !encodeSlash:
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}

// hmacSHA256 calculates HMAC-SHA256.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// hashHex returns the hex SHA-256 of data.
func hashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// categorizeError maps a transport error to an error code.
func (c *S3Client) categorizeError(err error) apperrors.ErrorCode {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.ErrSyncOffline
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return apperrors.ErrSyncOffline
	}
	return apperrors.ErrBlobUpload
}

// categorizeHTTPError maps an S3 error response to an error code.
func (c *S3Client) categorizeHTTPError(statusCode int, body string) apperrors.ErrorCode {
	switch statusCode {
	case http.StatusNotFound:
		if strings.Contains(body, "NoSuchBucket") {
			return apperrors.ErrRemoteNotConfigured
		}
		return apperrors.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrRemoteNotConfigured
	}
	return apperrors.ErrBlobUpload
}

// truncateString shortens s to maxLen bytes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
