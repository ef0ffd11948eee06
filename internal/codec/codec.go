// Package codec provides the encoders senders use to turn typed events into
// opaque payloads. The pipeline never inspects payloads; any deterministic
// encoding works.
package codec

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Encoder serializes one event into a payload.
type Encoder[T any] func(event T) ([]byte, error)

// JSON returns an Encoder that marshals events as compact JSON.
func JSON[T any]() Encoder[T] {
	return func(event T) ([]byte, error) {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return data, nil
	}
}

// Raw passes byte payloads through unchanged. The slice is copied so callers
// may reuse their buffer after Send returns.
func Raw() Encoder[[]byte] {
	return func(event []byte) ([]byte, error) {
		return append([]byte(nil), event...), nil
	}
}

// String encodes strings as their UTF-8 bytes.
func String() Encoder[string] {
	return func(event string) ([]byte, error) {
		return []byte(event), nil
	}
}

// Text encodes any fmt.Stringer through its String method.
func Text[T fmt.Stringer]() Encoder[T] {
	return func(event T) ([]byte, error) {
		return []byte(event.String()), nil
	}
}
