package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const archivePrefix = "replays"

// Archive uploads parsed replays to an S3-compatible bucket. With no bucket
// configured every call is a no-op.
type Archive struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

func NewArchive(cfg *config.Config, logger zerolog.Logger) (*Archive, error) {
	if cfg.ArchiveBucket == "" {
		logger.Info().Msg("replay archive disabled")
		return &Archive{logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArchiveEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info().Str("bucket", cfg.ArchiveBucket).Str("endpoint", cfg.ArchiveEndpoint).Msg("replay archive enabled")
	return &Archive{client: client, bucket: cfg.ArchiveBucket, logger: logger}, nil
}

func (a *Archive) Enabled() bool {
	return a != nil && a.client != nil
}

// Key is the object key of a replay file within the bucket.
func Key(season, name string) string {
	if season == "" {
		season = "unknown"
	}
	return path.Join(archivePrefix, season, name)
}

func (a *Archive) Put(ctx context.Context, key string, data []byte) error {
	if !a.Enabled() {
		return nil
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("replay archived")
	return nil
}
