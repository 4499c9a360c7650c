// Package config loads engine configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
)

const (
	MinProbeInterval  = 1 * time.Second
	MinStatusInterval = 5 * time.Second
	MaxImageQuality   = 100
)

// Blob providers.
const (
	ProviderSupabase = "supabase"
	ProviderMinIO    = "minio"
	ProviderAWS      = "aws"
	ProviderGCS      = "gcs"
)

// Connectivity modes.
const (
	ConnectivityProbe  = "probe"
	ConnectivityManual = "manual"
)

// Config holds every tunable of the engine.
type Config struct {
	DataDir   string
	LogLevel  string
	LogFormat string

	DatabaseURL  string
	ReportsTable string
	ImagesTable  string

	BlobProvider      string
	BlobEndpoint      string
	BlobRegion        string
	BlobAccessKey     string
	BlobSecretKey     string
	BlobPublicBaseURL string
	ImageBucket       string
	VoiceBucket       string
	GCSCredentials    string

	ConnectivityMode string
	InitialOnline    bool
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration

	StatusPollInterval time.Duration
	SyncTimeout        time.Duration

	ImageMaxDimension int
	ImageJPEGQuality  int

	HTTPAddr       string
	MetricsEnabled bool
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:   getEnv("DATA_DIR", "./data"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: strings.ToUpper(getEnv("LOG_FORMAT", "JSON")),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		ReportsTable: getEnv("REPORTS_TABLE", "damage_reports"),
		ImagesTable:  getEnv("IMAGES_TABLE", "damage_report_images"),

		BlobProvider:      strings.ToLower(getEnv("BLOB_PROVIDER", ProviderSupabase)),
		BlobEndpoint:      getEnv("BLOB_ENDPOINT", ""),
		BlobRegion:        getEnv("BLOB_REGION", "us-east-1"),
		BlobAccessKey:     getEnv("BLOB_ACCESS_KEY", ""),
		BlobSecretKey:     getEnv("BLOB_SECRET_KEY", ""),
		BlobPublicBaseURL: getEnv("BLOB_PUBLIC_BASE_URL", ""),
		ImageBucket:       getEnv("IMAGE_BUCKET", "damage-images"),
		VoiceBucket:       getEnv("VOICE_BUCKET", "damage-voice"),
		GCSCredentials:    getEnv("GCS_CREDENTIALS_JSON", ""),

		ConnectivityMode: strings.ToLower(getEnv("CONNECTIVITY_MODE", ConnectivityProbe)),
		InitialOnline:    getEnvBool("INITIAL_ONLINE", false),
		ProbeInterval:    time.Duration(getEnvInt("PROBE_INTERVAL_SEC", 15)) * time.Second,
		ProbeTimeout:     time.Duration(getEnvInt("PROBE_TIMEOUT_SEC", 5)) * time.Second,

		StatusPollInterval: time.Duration(getEnvInt("STATUS_POLL_INTERVAL_SEC", 30)) * time.Second,
		SyncTimeout:        time.Duration(getEnvInt("SYNC_TIMEOUT_MIN", 5)) * time.Minute,

		ImageMaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 1600),
		ImageJPEGQuality:  getEnvInt("IMAGE_JPEG_QUALITY", 80),

		HTTPAddr:       getEnv("HTTP_ADDR", "localhost:8090"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
	cfg.clamp()
	return cfg
}

// clamp pulls out-of-range values back to safe limits.
func (c *Config) clamp() {
	if c.ProbeInterval < MinProbeInterval {
		logging.Warn("PROBE_INTERVAL_SEC below minimum. Clamping", map[string]interface{}{
			"requested": c.ProbeInterval.String(),
			"limit":     MinProbeInterval.String(),
		})
		c.ProbeInterval = MinProbeInterval
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout > c.ProbeInterval {
		c.ProbeTimeout = c.ProbeInterval
	}
	if c.StatusPollInterval < MinStatusInterval {
		c.StatusPollInterval = MinStatusInterval
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Minute
	}
	if c.ImageMaxDimension < 0 {
		c.ImageMaxDimension = 0
	}
	if c.ImageJPEGQuality < 1 || c.ImageJPEGQuality > MaxImageQuality {
		c.ImageJPEGQuality = 80
	}
}

// RemoteConfigured reports whether a remote database is configured.
func (c *Config) RemoteConfigured() bool {
	return c.DatabaseURL != ""
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrInvalid, "DATA_DIR must not be empty")
	}
	switch c.BlobProvider {
	case ProviderSupabase, ProviderMinIO, ProviderAWS:
		if c.RemoteConfigured() && c.BlobProvider != ProviderAWS && c.BlobEndpoint == "" {
			return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("BLOB_ENDPOINT is required for provider %q", c.BlobProvider))
		}
	case ProviderGCS:
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown BLOB_PROVIDER %q", c.BlobProvider))
	}
	switch c.ConnectivityMode {
	case ConnectivityProbe, ConnectivityManual:
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown CONNECTIVITY_MODE %q", c.ConnectivityMode))
	}
	if c.ReportsTable == "" || c.ImagesTable == "" || c.ReportsTable == c.ImagesTable {
		return apperrors.New(apperrors.ErrInvalid, "REPORTS_TABLE and IMAGES_TABLE must be distinct and non-empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
