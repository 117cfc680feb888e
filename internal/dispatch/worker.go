package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/decisionstack/decision-engine/internal/engine"
	"github.com/decisionstack/decision-engine/internal/metrics"
	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/queue"
	"github.com/decisionstack/decision-engine/internal/registry"
)

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Workers           int
	HeartbeatInterval time.Duration
	ReapInterval      time.Duration
}

// Pool consumes job IDs from the queue and runs the pipeline for each.
// A reaper goroutine periodically expires stale leases so work stranded by a
// crashed worker surfaces as a failed job instead of hanging forever.
type Pool struct {
	logger   *slog.Logger
	store    registry.Store
	queue    queue.Queue
	pipeline *engine.Pipeline

	workers        int
	heartbeatEvery time.Duration
	reapEvery      time.Duration
	clock          clock.Clock
}

// NewPool builds a worker pool. Zero config fields get sane defaults.
func NewPool(logger *slog.Logger, store registry.Store, q queue.Queue, p *engine.Pipeline, cfg PoolConfig, clk clock.Clock) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 10 * time.Second
	}
	return &Pool{
		logger:         logger,
		store:          store,
		queue:          q,
		pipeline:       p,
		workers:        cfg.Workers,
		heartbeatEvery: cfg.HeartbeatInterval,
		reapEvery:      cfg.ReapInterval,
		clock:          clk,
	}
}

// Run starts the workers and the lease reaper, then blocks until ctx is
// cancelled and every goroutine has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.work(ctx, n)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reap(ctx)
	}()

	p.logger.Info("worker pool started", "workers", p.workers)
	wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) work(ctx context.Context, n int) {
	log := p.logger.With("worker", n)
	for {
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			// Back off briefly so a broken queue does not spin the worker.
			select {
			case <-ctx.Done():
				return
			case <-p.clock.After(time.Second):
			}
			continue
		}
		p.process(ctx, log, id)
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, id string) {
	job, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			log.Warn("dequeued unknown job", "job_id", id)
			return
		}
		log.Error("load job failed", "job_id", id, "error", err)
		return
	}
	if job.State.Terminal() {
		// The reaper or a duplicate delivery already settled this job.
		log.Debug("skipping terminal job", "job_id", id, "state", job.State)
		return
	}

	// Claim the job: replace the queued-lease deadline with the regular
	// processing lease before the pipeline starts.
	if err := p.store.Heartbeat(ctx, id); err != nil {
		if errors.Is(err, registry.ErrConflict) || errors.Is(err, registry.ErrNotFound) {
			log.Debug("job settled before claim", "job_id", id)
			return
		}
		log.Warn("claim lease failed", "job_id", id, "error", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbDone sync.WaitGroup
	hbDone.Add(1)
	go func() {
		defer hbDone.Done()
		p.heartbeat(hbCtx, log, id)
	}()

	start := p.clock.Now()
	decision, runErr := p.pipeline.Run(ctx, job.Incident)
	stopHeartbeat()
	hbDone.Wait()

	if runErr != nil {
		info := failureInfo(runErr)
		if err := p.store.Fail(ctx, id, info); err != nil && !errors.Is(err, registry.ErrConflict) {
			log.Error("mark job failed errored", "job_id", id, "error", err)
			return
		}
		metrics.ObserveDecision(p.clock.Now().Sub(start), metrics.OutcomeFailed)
		log.Info("job failed", "job_id", id, "code", info.Code, "reason", info.Message)
		return
	}

	if err := p.store.Complete(ctx, id, decision); err != nil {
		if errors.Is(err, registry.ErrConflict) {
			log.Warn("job settled elsewhere before completion", "job_id", id)
			return
		}
		log.Error("store decision failed", "job_id", id, "error", err)
		return
	}
	metrics.ObserveDecision(p.clock.Now().Sub(start), metrics.OutcomeCompleted)
	log.Info("job completed",
		"job_id", id,
		"action", decision.FinalDecision,
		"confidence", decision.Confidence)
}

// heartbeat extends the job's processing lease until cancelled.
func (p *Pool) heartbeat(ctx context.Context, log *slog.Logger, id string) {
	ticker := p.clock.Ticker(p.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.Heartbeat(ctx, id); err != nil && ctx.Err() == nil {
				log.Warn("heartbeat failed", "job_id", id, "error", err)
			}
		}
	}
}

func (p *Pool) reap(ctx context.Context) {
	ticker := p.clock.Ticker(p.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.ExpireLeases(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("lease reap failed", "error", err)
				}
				continue
			}
			if n > 0 {
				p.logger.Warn("recovered stale jobs", "count", n)
			}
		}
	}
}

// failureInfo maps a pipeline error to the client-visible error payload.
// Deliberate aborts keep their code and reason; anything else is opaque.
func failureInfo(err error) models.ErrorInfo {
	var abort *engine.AbortError
	if errors.As(err, &abort) {
		return models.ErrorInfo{Code: abort.Code, Message: abort.Reason}
	}
	return models.ErrorInfo{
		Code:    models.ErrCodeStageInternal,
		Message: "internal pipeline error",
	}
}
