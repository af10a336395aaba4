package storage

import (
	"fmt"

	"linkvault/internal/config"
)

// NewFromConfig builds the backend selected by cfg.Provider.
func NewFromConfig(cfg config.StorageConfig, publicBaseURL string) (BlobStore, error) {
	switch cfg.Provider {
	case "local":
		return NewLocalStore(cfg.LocalDir, cfg.LocalSigningKey, publicBaseURL)
	case "aliyun":
		return NewAliyunStore(cfg.Endpoint, cfg.Region, cfg.Bucket, cfg.AccessKey, cfg.SecretKey)
	case "tencent":
		return NewTencentStore(cfg.Endpoint, cfg.Region, cfg.Bucket, cfg.AccessKey, cfg.SecretKey)
	case "qiniu":
		return NewQiniuStore(cfg.Bucket, cfg.Domain, cfg.AccessKey, cfg.SecretKey)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}
