package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store that result workbooks are mirrored to.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the URL for accessing an object
	GetURL(key string) string
}
