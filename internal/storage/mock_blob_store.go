package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a testify mock of BlobStore.
type MockBlobStore struct {
	mock.Mock
}

// PutObject records the call and returns the configured results.
func (m *MockBlobStore) PutObject(ctx context.Context, obj Object, data io.Reader) (string, error) {
	args := m.Called(ctx, obj, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
