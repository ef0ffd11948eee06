// Package archive implements a Pusher that writes each batch as a
// newline-delimited JSON object to a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
	"github.com/JakeFAU/topicbatch/internal/storage"
)

// ContentType is the media type of archived batches.
const ContentType = "application/x-ndjson"

// Record is one archived line.
type Record struct {
	BatchID    string          `json:"batch_id"`
	Topic      string          `json:"topic"`
	Seq        int             `json:"seq"`
	Reason     string          `json:"flush_reason"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	FlushedAt  time.Time       `json:"flushed_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Raw        []byte          `json:"raw,omitempty"`
}

// Pusher archives batches under prefix/topic/YYYY/MM/DD/batch_id.ndjson.
type Pusher struct {
	store  storage.BlobStore
	prefix string
	logger *zap.Logger
}

// New returns an archive Pusher writing to store under prefix.
func New(store storage.BlobStore, prefix string, logger *zap.Logger) (*Pusher, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pusher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// ObjectPath returns the object key a batch is archived at.
func (p *Pusher) ObjectPath(batch pipeline.Batch) string {
	ts := batch.FlushedAt.UTC()
	return path.Join(
		p.prefix,
		batch.Topic,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		batch.ID+".ndjson",
	)
}

// ObjectMetadata returns the custom metadata stored alongside an archived
// batch so objects can be found by topic or batch without reading them.
func ObjectMetadata(batch pipeline.Batch) map[string]string {
	return map[string]string{
		"topic":         batch.Topic,
		"batch_id":      batch.ID,
		"flush_reason":  string(batch.Reason),
		"message_count": strconv.Itoa(batch.Len()),
		"flushed_at":    batch.FlushedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Push encodes and uploads the batch. Payloads that are valid JSON are
// embedded as-is; anything else is stored base64-encoded under "raw".
func (p *Pusher) Push(ctx context.Context, batch pipeline.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("validate batch: %w", err)
	}
	body, err := Encode(batch)
	if err != nil {
		return err
	}
	obj := storage.Object{
		Path:        p.ObjectPath(batch),
		ContentType: ContentType,
		Metadata:    ObjectMetadata(batch),
	}
	uri, err := p.store.PutObject(ctx, obj, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archive batch %s: %w", batch.ID, err)
	}
	p.logger.Debug("batch archived",
		zap.String("topic", batch.Topic),
		zap.String("batch_id", batch.ID),
		zap.String("uri", uri),
	)
	return nil
}

// Encode renders batch as NDJSON, one Record per message.
func Encode(batch pipeline.Batch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, msg := range batch.Messages {
		rec := Record{
			BatchID:    batch.ID,
			Topic:      batch.Topic,
			Seq:        i,
			Reason:     string(batch.Reason),
			EnqueuedAt: msg.EnqueuedAt,
			FlushedAt:  batch.FlushedAt,
		}
		if json.Valid(msg.Payload) {
			rec.Payload = json.RawMessage(msg.Payload)
		} else {
			rec.Raw = msg.Payload
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %d of batch %s: %w", i, batch.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// Close is a no-op; the blob store is owned by the caller.
func (p *Pusher) Close(context.Context) error {
	return nil
}
