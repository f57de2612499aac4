package cache

import (
	"context"
	"fmt"

	"github.com/ignite/prospectai/internal/config"
)

// NewFromConfig builds the persistent backend named by cfg and wraps it
// in a Cache sized per cfg's memory tier.
func NewFromConfig(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	var backend Backend
	var err error

	switch cfg.PersistentBackend {
	case "", "local":
		backend, err = NewLocalBackend(cfg.PersistentDir)
	case "s3":
		backend, err = NewS3Backend(ctx, cfg.S3Bucket, "cache/", cfg.AWSRegion)
	case "dynamodb":
		backend, err = NewDynamoDBBackend(ctx, cfg.DynamoDBTable, cfg.AWSRegion)
	default:
		return nil, fmt.Errorf("cache: unknown persistent backend %q", cfg.PersistentBackend)
	}
	if err != nil {
		return nil, err
	}

	c, err := New(cfg.MemoryMaxEntries, backend)
	if err != nil {
		return nil, err
	}
	if cfg.MemoryMaxMB > 0 {
		c.maxBytes = int64(cfg.MemoryMaxMB) << 20
	}
	return c, nil
}
