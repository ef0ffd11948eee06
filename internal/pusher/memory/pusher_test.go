package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/topicbatch/internal/pipeline"
)

func TestPusherStoresBatches(t *testing.T) {
	t.Parallel()

	p := New()
	first := pipeline.Batch{ID: "1", Topic: "topic-a", Messages: []pipeline.Message{{Payload: []byte("x")}}}
	second := pipeline.Batch{ID: "2", Topic: "topic-b", Messages: []pipeline.Message{{Payload: []byte("y")}, {Payload: []byte("z")}}}
	if err := p.Push(context.Background(), first); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := p.Push(context.Background(), second); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	batches := p.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Topic != "topic-a" || batches[1].Topic != "topic-b" {
		t.Fatalf("topics not recorded correctly: %+v", batches)
	}
	if got := p.MessageCount(); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
	if got := len(p.ByTopic("topic-b")); got != 1 {
		t.Fatalf("expected 1 batch for topic-b, got %d", got)
	}

	batches[0].Topic = "modified"
	if p.Batches()[0].Topic == "modified" {
		t.Fatal("expected Batches() to return a copy")
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.Closed() {
		t.Fatal("expected pusher to be closed")
	}
}
