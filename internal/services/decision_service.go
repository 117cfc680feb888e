package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/decisionstack/decision-engine/internal/cache"
	"github.com/decisionstack/decision-engine/internal/dispatch"
	"github.com/decisionstack/decision-engine/internal/metrics"
	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/registry"
	"github.com/decisionstack/decision-engine/internal/utils"
)

const defaultListLimit = 20

// DecisionService is the application layer between the HTTP handlers and the
// dispatcher/registry. It also memoizes the recent-decisions listing in the
// cache so dashboard polling does not hammer the registry.
type DecisionService struct {
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	store      registry.Store
	cache      cache.Provider
	listTTL    time.Duration
	latencies  *utils.LatencyTracker

	// mu guards cachedKeys, the set of listing keys written to the cache.
	// Reset must invalidate every one of them, whatever limit they carry.
	mu         sync.Mutex
	cachedKeys map[string]struct{}
}

// NewDecisionService wires the service. A nil cache disables list memoization.
func NewDecisionService(logger *slog.Logger, d *dispatch.Dispatcher, store registry.Store, c cache.Provider, listTTL time.Duration) *DecisionService {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NoopProvider{}
	}
	if listTTL <= 0 {
		listTTL = 5 * time.Second
	}
	return &DecisionService{
		logger:     logger,
		dispatcher: d,
		store:      store,
		cache:      c,
		listTTL:    listTTL,
		latencies:  utils.NewLatencyTracker(512),
		cachedKeys: make(map[string]struct{}),
	}
}

// Submit accepts an incident and returns the ID of the processing job.
func (s *DecisionService) Submit(ctx context.Context, inc models.Incident) (string, error) {
	start := time.Now()
	id, err := s.dispatcher.Submit(ctx, inc)
	s.latencies.Observe(time.Since(start))
	if s.latencies.Count()%20 == 0 {
		s.logger.Info("submission latency",
			"p95", s.latencies.Percentile(95),
			"samples", s.latencies.Count())
	}
	if err != nil {
		return id, err
	}
	metrics.ObserveSubmission()
	return id, nil
}

// GetDecision returns the job for id, whatever state it is in.
func (s *DecisionService) GetDecision(ctx context.Context, id string) (models.Job, error) {
	return s.store.Get(ctx, id)
}

// ListDecisions returns up to limit completed jobs, most recent first. The
// result is cached briefly under a per-limit key.
func (s *DecisionService) ListDecisions(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	key := listCacheKey(limit)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var jobs []models.Job
		if err := json.Unmarshal(raw, &jobs); err == nil {
			return jobs, nil
		}
		// Corrupt entry; fall through to the registry and overwrite it.
		s.logger.Warn("discarding unreadable cache entry", "key", key)
	}

	jobs, err := s.store.ListCompleted(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}

	if raw, err := json.Marshal(jobs); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.listTTL); err != nil {
			s.logger.Warn("cache recent decisions failed", "error", err)
		} else {
			s.mu.Lock()
			s.cachedKeys[key] = struct{}{}
			s.mu.Unlock()
		}
	}
	return jobs, nil
}

// Reset wipes every job and invalidates every listing entry the service has
// cached, so a post-reset listing is empty for any limit.
func (s *DecisionService) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}

	s.mu.Lock()
	keys := make([]string, 0, len(s.cachedKeys))
	for key := range s.cachedKeys {
		keys = append(keys, key)
	}
	s.cachedKeys = make(map[string]struct{})
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.cache.Del(ctx, key); err != nil {
			s.logger.Warn("invalidate listing cache failed", "key", key, "error", err)
		}
	}
	s.logger.Info("registry reset")
	return nil
}

// Health reports whether the registry backend is reachable.
func (s *DecisionService) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func listCacheKey(limit int) string {
	return fmt.Sprintf("decisions:recent:%d", limit)
}
