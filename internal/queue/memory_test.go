package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	defer q.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("dequeued %s, want %s", got, want)
		}
	}
}

func TestMemoryQueueFullRejects(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	defer q.Close()

	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	err := q.Enqueue(ctx, "b")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on full queue, got %v", err)
	}
}

func TestMemoryQueueClosedRejects(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := q.Enqueue(context.Background(), "a"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
