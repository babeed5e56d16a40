package storage

import (
	"context"

	"fitsstore-go/internal/config"
	"fitsstore-go/pkg/log"
)

// New 按 using_s3 选择后端。
func New(ctx context.Context, cfg config.StorageConfig, mc config.MinIOConfig) (Store, error) {
	if !cfg.UsingS3 {
		log.Infof("[Storage] 使用本地存储: %s", cfg.StorageRoot)
		return NewLocalStore(cfg.StorageRoot), nil
	}
	client, err := NewMinioClient(mc)
	if err != nil {
		return nil, err
	}
	log.Infof("[Storage] 使用 S3 存储: %s/%s", mc.Endpoint, cfg.S3BucketName)
	return NewS3Store(ctx, client, cfg.S3BucketName)
}
