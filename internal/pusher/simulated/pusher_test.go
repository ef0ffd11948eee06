package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

func batchOf(n int) pipeline.Batch {
	msgs := make([]pipeline.Message, n)
	for i := range msgs {
		msgs[i] = pipeline.Message{Payload: []byte("x")}
	}
	return pipeline.Batch{ID: "b1", Topic: "orders", Messages: msgs, Reason: pipeline.FlushSize}
}

func TestPushWaitsForLatency(t *testing.T) {
	t.Parallel()

	p := New(Config{Latency: 50 * time.Millisecond, Jitter: 10 * time.Millisecond}, nil)
	start := time.Now()
	require.NoError(t, p.Push(context.Background(), batchOf(3)))
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.EqualValues(t, 3, p.Pushed())
	require.NoError(t, p.Close(context.Background()))
}

func TestPushHonorsContext(t *testing.T) {
	t.Parallel()

	p := New(Config{Latency: time.Minute}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Push(ctx, batchOf(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, p.Pushed())
}

func TestZeroLatencyReturnsImmediately(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	require.NoError(t, p.Push(context.Background(), batchOf(2)))
	require.EqualValues(t, 2, p.Pushed())
}
