package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/storage/minio"
	"github.com/feichai0017/lineage-engine/pkg/storage/s3"
)

// StorageType selects a blob storage backend
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds the raw document blobs the ingestion pipeline wrote. The
// lineage engine only reads them, to extract text that was never cached on
// the document; Store exists for the ingestion boundary.
type Storage interface {
	// Store writes a blob under the given key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get fetches a blob by storage path.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewStorage creates a storage backend by type.
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.GetClient(log)
	case StorageTypeMinio:
		return minio.GetClient(log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
