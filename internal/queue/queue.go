package queue

import (
	"context"
	"errors"
)

// ErrUnavailable signals the queue cannot accept or deliver work right now.
// Dispatchers surface it to submitters as DISPATCH_UNAVAILABLE.
var ErrUnavailable = errors.New("queue unavailable")

// Queue hands job ids from the dispatcher to pipeline workers. Delivery is
// at-least-once; the registry's terminal-write protection absorbs duplicates.
type Queue interface {
	// Enqueue schedules a job id for asynchronous execution. It never blocks
	// on pipeline completion.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a job id is available, the context is cancelled,
	// or the queue is closed.
	Dequeue(ctx context.Context) (string, error)

	Close() error
}
