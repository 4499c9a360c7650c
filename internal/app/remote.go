package app

import (
	"context"

	"google.golang.org/api/option"

	"github.com/kimhsiao/damagelog/backend/internal/config"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/remote"
	syncpkg "github.com/kimhsiao/damagelog/backend/internal/sync"
	"github.com/kimhsiao/damagelog/backend/internal/sync/connectivity"
	"github.com/kimhsiao/damagelog/backend/internal/sync/gcs"
	"github.com/kimhsiao/damagelog/backend/internal/sync/s3"
)

var (
	_ syncpkg.Remote = (*remote.Repository)(nil)
	_ syncpkg.Remote = remote.Disabled{}
)

// buildRemote returns the configured remote, the pinger used by the
// connectivity probe and the functions releasing them.
func buildRemote(ctx context.Context, cfg *config.Config) (syncpkg.Remote, connectivity.Pinger, []func(), error) {
	if !cfg.RemoteConfigured() {
		return remote.Disabled{}, nil, nil, nil
	}

	records, err := remote.NewPostgresRepository(ctx, cfg.DatabaseURL, cfg.ReportsTable, cfg.ImagesTable)
	if err != nil {
		return nil, nil, nil, err
	}
	closers := []func(){records.Close}

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		records.Close()
		return nil, nil, nil, err
	}
	if closeBlobs != nil {
		closers = append(closers, closeBlobs)
	}
	return remote.NewRepository(records, blobs), records, closers, nil
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (remote.BlobStore, func(), error) {
	switch cfg.BlobProvider {
	case config.ProviderSupabase:
		c, err := s3.NewSupabaseClient(&s3.SupabaseConfig{
			ProjectURL: cfg.BlobEndpoint,
			AccessKey:  cfg.BlobAccessKey,
			SecretKey:  cfg.BlobSecretKey,
			Region:     cfg.BlobRegion,
		})
		return c, nil, wrapBlobErr(err)
	case config.ProviderMinIO:
		c, err := s3.NewMinIOClient(&s3.MinIOConfig{
			Endpoint:      cfg.BlobEndpoint,
			AccessKey:     cfg.BlobAccessKey,
			SecretKey:     cfg.BlobSecretKey,
			UseSSL:        true,
			PublicBaseURL: cfg.BlobPublicBaseURL,
		})
		return c, nil, wrapBlobErr(err)
	case config.ProviderAWS:
		c, err := s3.NewAWSClient(&s3.AWSConfig{
			AccessKey:     cfg.BlobAccessKey,
			SecretKey:     cfg.BlobSecretKey,
			Region:        cfg.BlobRegion,
			PublicBaseURL: cfg.BlobPublicBaseURL,
		})
		return c, nil, wrapBlobErr(err)
	case config.ProviderGCS:
		gcfg := gcs.Config{
			CredentialsJSON: cfg.GCSCredentials,
			PublicBaseURL:   cfg.BlobPublicBaseURL,
		}
		if cfg.BlobEndpoint != "" {
			gcfg.Options = append(gcfg.Options, option.WithEndpoint(cfg.BlobEndpoint))
		}
		st, err := gcs.New(ctx, gcfg)
		if err != nil {
			return nil, nil, wrapBlobErr(err)
		}
		return st, func() { st.Close() }, nil
	}
	return nil, nil, apperrors.New(apperrors.ErrInvalid, "unknown blob provider "+cfg.BlobProvider)
}

func wrapBlobErr(err error) error {
	if err == nil || apperrors.CodeOf(err) != apperrors.ErrInternal {
		return err
	}
	return apperrors.Wrap(apperrors.ErrRemoteNotConfigured, "configure blob storage", err)
}
