// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"maps"
	"strings"

	"cloud.google.com/go/storage"

	blob "github.com/JakeFAU/topicbatch/internal/storage"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// CacheControl is set on every archived object when non-empty.
	CacheControl string
}

// BlobStore uploads batch archives to a single bucket. Archives are small
// and written once, so each upload is buffered, sent in one request and
// checked server-side against its CRC32C.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		cacheControl: cfg.CacheControl,
	}, nil
}

// PutObject uploads data to obj.Path, attaching obj.Metadata as custom object
// metadata, and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, obj blob.Object, r io.Reader) (string, error) {
	if strings.TrimSpace(obj.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", obj.Path, err)
	}

	w := s.client.Bucket(s.bucket).Object(obj.Path).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = s.cacheControl
	if len(obj.Metadata) > 0 {
		w.Metadata = maps.Clone(obj.Metadata)
	}
	w.ChunkSize = 0
	w.CRC32C = crc32.Checksum(body, castagnoli)
	w.SendCRC32C = true

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload object %s: %w", obj.Path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload object %s: %w", obj.Path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, obj.Path), nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
