package blob

import (
	"context"

	"groupcore/internal/infra/blob/s3"
)

// S3Config holds explicit S3 construction parameters.
type S3Config = s3.Config

// NewS3 returns an S3-backed Store from explicit configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3.New(ctx, cfg)
}

// OpenS3FromEnv returns an S3-backed Store configured from the environment.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	return s3.OpenFromEnv(ctx)
}
