package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topicbatch/internal/storage"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	meta := map[string]string{"topic": "orders"}
	obj := storage.Object{Path: "orders/b1.ndjson", ContentType: "application/x-ndjson", Metadata: meta}
	uri, err := store.PutObject(context.Background(), obj, bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	require.Equal(t, "memory://orders/b1.ndjson", uri)

	got, ok := store.Get("orders/b1.ndjson")
	require.True(t, ok)
	got[0] = 'C'
	again, _ := store.Get("orders/b1.ndjson")
	require.Equal(t, "content", string(again))

	_, ok = store.Get("missing")
	require.False(t, ok)

	meta["topic"] = "changed"
	require.Equal(t, map[string]string{"topic": "orders"}, store.Metadata("orders/b1.ndjson"))
	require.Nil(t, store.Metadata("missing"))
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b", "a", "c"} {
		_, err := store.PutObject(context.Background(), storage.Object{Path: p}, bytes.NewReader(nil))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b", "c"}, store.Paths())
}
