// Package storage defines the blob store abstraction used by the archive
// pusher. Implementations live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"io"
)

// Object describes where and how a blob is written.
type Object struct {
	Path        string
	ContentType string
	// Metadata is attached as custom object metadata where the backend
	// supports it and ignored otherwise.
	Metadata map[string]string
}

// BlobStore writes an object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, obj Object, data io.Reader) (string, error)
}
