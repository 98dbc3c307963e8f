package storage

import (
	"context"
	"time"
)

// ObjectInfo is the listing metadata for a stored object.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// ObjectStore is the object-storage port used by the console.
// Get returns domain.ErrNotFound when the key does not exist.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

const (
	ContentTypeJSON   = "application/json"
	ContentTypeCSV    = "text/csv"
	ContentTypeZip    = "application/zip"
	ContentTypeXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeBinary = "application/octet-stream"
)
