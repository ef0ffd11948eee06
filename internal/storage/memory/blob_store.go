// Package memory stores blobs in-memory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"

	"github.com/JakeFAU/topicbatch/internal/storage"
)

// BlobStore keeps objects in a map and returns memory:// URIs.
type BlobStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	metadata map[string]map[string]string
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:     make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

// PutObject stores a copy of the content and metadata and returns its URI.
func (s *BlobStore) PutObject(_ context.Context, obj storage.Object, data io.Reader) (string, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}
	s.mu.Lock()
	s.data[obj.Path] = content
	s.metadata[obj.Path] = maps.Clone(obj.Metadata)
	s.mu.Unlock()
	return "memory://" + obj.Path, nil
}

// Metadata returns a copy of the metadata stored with path.
func (s *BlobStore) Metadata(path string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.metadata[path])
}

// Get returns the stored content for path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}

// Paths lists stored object paths in lexical order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
