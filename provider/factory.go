package provider

import (
	"context"
	"fmt"
)

// Backend names accepted by New.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendAzure = "azure"
	BackendLocal = "local"
)

// Backends lists every supported backend name.
var Backends = []string{BackendS3, BackendMinio, BackendAzure, BackendLocal}

// StoreConfig selects and configures one ObjectStore backend.
type StoreConfig struct {
	Backend string

	S3    S3Config
	Minio MinioConfig

	// AzureConnectionString is the storage account connection string.
	AzureConnectionString string

	// LocalRoot is the directory holding containers of the local backend.
	LocalRoot string
	// LocalBufferSize is the copy buffer size of the local backend.
	LocalBufferSize int
}

// New builds the ObjectStore named by cfg.Backend.
func New(ctx context.Context, cfg StoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case BackendMinio:
		return NewMinioStore(cfg.Minio)
	case BackendAzure:
		return NewAzureStore(cfg.AzureConnectionString)
	case BackendLocal:
		return NewLocalStore(cfg.LocalRoot, cfg.LocalBufferSize), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
