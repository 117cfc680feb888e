package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/decisionstack/decision-engine/internal/metrics"
)

// MemoryQueue is a channel-backed queue for tests and single-binary deploys.
// A full or closed queue rejects new work instead of blocking the submitter.
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

// NewMemoryQueue creates a queue holding up to buffer pending job ids.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{ch: make(chan string, buffer)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("%w: queue closed", ErrUnavailable)
	}
	select {
	case q.ch <- jobID:
		metrics.QueueDepthInc()
		return nil
	default:
		return fmt.Errorf("%w: queue full", ErrUnavailable)
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id, ok := <-q.ch:
		if !ok {
			return "", fmt.Errorf("%w: queue closed", ErrUnavailable)
		}
		metrics.QueueDepthDec()
		return id, nil
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
