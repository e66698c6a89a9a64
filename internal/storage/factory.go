package storage

import (
	"context"
	"fmt"

	"s3drive/internal/config"
)

// NewFromConfig builds the backend selected by cfg.Backend. localDir is used
// for the local backend when cfg.Local.Root is empty.
func NewFromConfig(ctx context.Context, cfg *config.Config, localDir string) (ObjectStore, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Client(ctx, cfg.S3)
	case config.BackendAzure:
		return NewAzureClient(cfg.Azure)
	case config.BackendLocal, "":
		root := cfg.Local.Root
		if root == "" {
			root = localDir
		}
		return NewLocalClient(root), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
