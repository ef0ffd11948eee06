package log

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

func TestPushLogsBatch(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	p := New(zap.New(core), WithMessages())

	batch := pipeline.Batch{
		ID:        "b1",
		Topic:     "orders",
		Messages:  []pipeline.Message{{Payload: []byte("a")}, {Payload: []byte("b")}},
		Reason:    pipeline.FlushTimeout,
		FlushedAt: time.Now(),
	}
	require.NoError(t, p.Push(context.Background(), batch))
	require.NoError(t, p.Close(context.Background()))

	entries := logs.FilterMessage("batch received").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "orders", fields["topic"])
	require.Equal(t, "b1", fields["batch_id"])
	require.EqualValues(t, 2, fields["size"])
	require.Equal(t, "timeout", fields["reason"])
	// Message lines are debug-only.
	require.Zero(t, logs.FilterMessage("batch message").Len())
}

func TestPushLogsMessagesAtDebug(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	p := New(zap.New(core), WithMessages())

	batch := pipeline.Batch{
		ID:       "b1",
		Topic:    "orders",
		Messages: []pipeline.Message{{Payload: []byte("a")}, {Payload: []byte("b")}},
		Reason:   pipeline.FlushSize,
	}
	require.NoError(t, p.Push(context.Background(), batch))

	msgs := logs.FilterMessage("batch message").All()
	require.Len(t, msgs, 2)
	require.Equal(t, "b", msgs[1].ContextMap()["payload"])
}

func TestNilLogger(t *testing.T) {
	t.Parallel()

	p := New(nil)
	require.NoError(t, p.Push(context.Background(), pipeline.Batch{Topic: "t"}))
}
