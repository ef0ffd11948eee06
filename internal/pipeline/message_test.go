package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	valid := Batch{
		ID:       "b1",
		Topic:    "orders",
		Messages: []Message{{Payload: []byte("x"), EnqueuedAt: time.Now()}},
		Reason:   FlushSize,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		mod  func(b Batch) Batch
		want string
	}{
		{
			name: "missing topic",
			mod: func(b Batch) Batch {
				b.Topic = ""
				return b
			},
			want: "topic is required",
		},
		{
			name: "no messages",
			mod: func(b Batch) Batch {
				b.Messages = nil
				return b
			},
			want: "no messages",
		},
		{
			name: "unknown reason",
			mod: func(b Batch) Batch {
				b.Reason = "manual"
				return b
			},
			want: "unknown flush reason",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.mod(valid).Validate()
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBatchPayloadsKeepOrder(t *testing.T) {
	t.Parallel()

	b := Batch{Messages: []Message{{Payload: []byte("a")}, {Payload: []byte("b")}}}
	require.Equal(t, 2, b.Len())
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, b.Payloads())
}

func TestSerializationErrorUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("unsupported type")
	err := error(&SerializationError{Topic: "orders", Err: cause})
	require.ErrorIs(t, err, cause)
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "orders", serr.Topic)
	require.Equal(t, `serialize event for topic "orders": unsupported type`, err.Error())
}
