package pusher

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

// Multi broadcasts each batch to every pusher in order. A failing pusher does
// not stop the others; all failures are returned together.
type Multi struct {
	pushers []pipeline.Pusher
}

// NewMulti creates a Multi over pushers. Nil entries are skipped.
func NewMulti(pushers ...pipeline.Pusher) *Multi {
	out := make([]pipeline.Pusher, 0, len(pushers))
	for _, p := range pushers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Multi{pushers: out}
}

// Len returns the number of wrapped pushers.
func (m *Multi) Len() int {
	return len(m.pushers)
}

// Push pushes batch to every pusher.
func (m *Multi) Push(ctx context.Context, batch pipeline.Batch) error {
	var errs error
	for i, p := range m.pushers {
		if err := p.Push(ctx, batch); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pusher %d: %w", i, err))
		}
	}
	return errs
}

// Close closes every pusher.
func (m *Multi) Close(ctx context.Context) error {
	var errs error
	for i, p := range m.pushers {
		if err := p.Close(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close pusher %d: %w", i, err))
		}
	}
	return errs
}
