package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/queue"
	"github.com/decisionstack/decision-engine/internal/registry"
)

// ErrDispatchUnavailable is returned when a job cannot be handed to the work queue.
var ErrDispatchUnavailable = errors.New("dispatch unavailable")

// Dispatcher records new jobs in the registry and enqueues them for workers.
type Dispatcher struct {
	logger *slog.Logger
	store  registry.Store
	queue  queue.Queue
}

// NewDispatcher wires a dispatcher to its registry and queue.
func NewDispatcher(logger *slog.Logger, store registry.Store, q queue.Queue) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, store: store, queue: q}
}

// Submit persists the incident as a processing job, then enqueues its ID.
// The job record is created first so a caller always gets a pollable ID;
// if the enqueue fails the job is marked failed rather than left dangling.
func (d *Dispatcher) Submit(ctx context.Context, inc models.Incident) (string, error) {
	job, err := d.store.Create(ctx, inc)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	id := job.ID

	if err := d.queue.Enqueue(ctx, id); err != nil {
		d.logger.Error("enqueue failed, failing job",
			"job_id", id, "error", err)
		info := models.ErrorInfo{
			Code:    models.ErrCodeDispatchUnavailable,
			Message: "work queue unavailable",
		}
		if failErr := d.store.Fail(ctx, id, info); failErr != nil {
			d.logger.Error("could not mark job failed after enqueue error",
				"job_id", id, "error", failErr)
		}
		return id, fmt.Errorf("%w: %v", ErrDispatchUnavailable, err)
	}

	d.logger.Debug("job dispatched", "job_id", id)
	return id, nil
}
