package registry

import (
	"context"
	"errors"

	"github.com/decisionstack/decision-engine/internal/models"
)

// ErrNotFound signals an unknown job id.
var ErrNotFound = errors.New("job not found")

// ErrConflict signals a terminal write against a job that is already
// terminal. The first terminal write wins; losers get this error.
var ErrConflict = errors.New("job already terminal")

// queuedLeaseFactor stretches the lease TTL for jobs that no worker has
// claimed yet. A deep queue backlog must not look like a worker crash, but a
// job lost by the queue still gets failed eventually.
const queuedLeaseFactor = 10

// Store is the Job Registry: the single shared mutable structure of the
// system. It owns every Job record and serializes terminal writes per id, so
// concurrent Complete/Fail calls for the same job race safely with exactly
// one winner.
type Store interface {
	// Create allocates a fresh job in the processing state and returns it.
	Create(ctx context.Context, incident models.Incident) (models.Job, error)

	// Get returns the job for id, or ErrNotFound. Reads of terminal jobs are
	// idempotent: repeated calls return the same Decision or error payload.
	Get(ctx context.Context, id string) (models.Job, error)

	// Complete transitions processing -> completed and stores the decision.
	// Returns ErrConflict if the job is already terminal, ErrNotFound if
	// unknown.
	Complete(ctx context.Context, id string, decision models.Decision) error

	// Fail transitions processing -> failed with the client-visible reason.
	// Same terminal-write protection as Complete.
	Fail(ctx context.Context, id string, info models.ErrorInfo) error

	// ListCompleted returns up to limit completed jobs, most recent first.
	ListCompleted(ctx context.Context, limit int) ([]models.Job, error)

	// Heartbeat claims or extends the processing lease for id. Workers call
	// this once when they dequeue a job and periodically while its pipeline
	// runs, so a crashed worker's jobs become recoverable. Jobs never
	// claimed keep the longer queued-lease deadline set at creation.
	Heartbeat(ctx context.Context, id string) error

	// ExpireLeases fails every processing job whose lease has lapsed and
	// returns how many were recovered.
	ExpireLeases(ctx context.Context) (int, error)

	// Reset clears all jobs. Administrative operation only.
	Reset(ctx context.Context) error

	// Ping verifies the registry backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
