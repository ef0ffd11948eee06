package pusher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
	"github.com/JakeFAU/topicbatch/internal/pusher/memory"
)

func testBatch() pipeline.Batch {
	return pipeline.Batch{
		ID:       "b1",
		Topic:    "orders",
		Messages: []pipeline.Message{{Payload: []byte("a")}},
		Reason:   pipeline.FlushSize,
	}
}

// flaky fails the first n pushes with err, then delegates.
type flaky struct {
	*memory.Pusher
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flaky) Push(ctx context.Context, batch pipeline.Batch) error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return f.Pusher.Push(ctx, batch)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	next := &flaky{Pusher: memory.New(), failures: 2, err: errors.New("unavailable")}
	r := NewRetry(next, fastRetry(), zap.New(core))

	require.NoError(t, r.Push(context.Background(), testBatch()))
	require.EqualValues(t, 3, next.calls.Load())
	require.Len(t, next.Batches(), 1)
	require.Equal(t, 2, logs.FilterMessage("push failed; retrying").Len())

	require.NoError(t, r.Close(context.Background()))
	require.True(t, next.Closed())
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	boom := errors.New("unavailable")
	next := &flaky{Pusher: memory.New(), failures: 10, err: boom}
	r := NewRetry(next, fastRetry(), nil)

	err := r.Push(context.Background(), testBatch())
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 3, next.calls.Load())
}

func TestRetryStopsOnContextError(t *testing.T) {
	t.Parallel()

	next := &flaky{Pusher: memory.New(), failures: 10, err: context.DeadlineExceeded}
	r := NewRetry(next, fastRetry(), nil)

	err := r.Push(context.Background(), testBatch())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 1, next.calls.Load())
}

func TestRetryRejectsInvalidBatch(t *testing.T) {
	t.Parallel()

	next := &flaky{Pusher: memory.New()}
	r := NewRetry(next, RetryConfig{}, nil)
	require.Error(t, r.Push(context.Background(), pipeline.Batch{}))
	require.Zero(t, next.calls.Load())
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	a, b := memory.New(), memory.New()
	failing := &flaky{Pusher: memory.New(), failures: 1, err: errors.New("down")}
	m := NewMulti(a, nil, failing, b)
	require.Equal(t, 3, m.Len())

	err := m.Push(context.Background(), testBatch())
	require.ErrorContains(t, err, "pusher 1: down")
	require.Len(t, a.Batches(), 1)
	require.Len(t, b.Batches(), 1)

	require.NoError(t, m.Push(context.Background(), testBatch()))
	require.Len(t, failing.Batches(), 1)

	require.NoError(t, m.Close(context.Background()))
	require.True(t, a.Closed())
	require.True(t, b.Closed())
}
