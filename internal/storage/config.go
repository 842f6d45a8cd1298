package storage

import (
	"context"

	"github.com/joseph-ayodele/review-orchestrator/internal/common"
)

// FromConfig returns an S3 store when a bucket is configured and a local
// FileStore otherwise.
func FromConfig(ctx context.Context, cfg common.StorageConfig) (ObjectStore, error) {
	if cfg.Bucket == "" {
		return NewFileStore(cfg.LocalDir)
	}
	return NewS3Store(ctx, S3StoreConfig{
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
}
