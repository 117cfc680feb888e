package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decisionstack/decision-engine/internal/cache"
	"github.com/decisionstack/decision-engine/internal/dispatch"
	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/queue"
	"github.com/decisionstack/decision-engine/internal/registry"
)

type recordingCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
	gets    int
	dels    []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]byte)}
}

func (c *recordingCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if val, ok := c.entries[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *recordingCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *recordingCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels = append(c.dels, key)
	delete(c.entries, key)
	return nil
}

func (c *recordingCache) Close() error { return nil }

func newTestService(t *testing.T, provider cache.Provider) (*DecisionService, *registry.MemoryStore, *queue.MemoryQueue) {
	t.Helper()
	store := registry.NewMemoryStore(0, nil)
	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { q.Close() })
	d := dispatch.NewDispatcher(nil, store, q)
	return NewDecisionService(nil, d, store, provider, time.Second), store, q
}

func TestServiceSubmitCreatesProcessingJob(t *testing.T) {
	ctx := context.Background()
	svc, store, q := newTestService(t, nil)

	id, err := svc.Submit(ctx, models.Incident{Service: "payment-api", Metric: "latency_p99", DeltaPct: 400})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job, err := svc.GetDecision(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.State != models.JobProcessing {
		t.Fatalf("state = %s, want processing", job.State)
	}

	queued, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if queued != id {
		t.Fatalf("queued %s, want %s", queued, id)
	}

	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("registry get: %v", err)
	}
	if stored.Incident.Service != "payment-api" {
		t.Fatalf("incident not persisted: %+v", stored.Incident)
	}
}

func TestServiceGetUnknownDecision(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if _, err := svc.GetDecision(context.Background(), "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceListDecisionsUsesCache(t *testing.T) {
	ctx := context.Background()
	provider := newRecordingCache()
	svc, store, _ := newTestService(t, provider)

	job, err := store.Create(ctx, models.Incident{Service: "a", Metric: "m", DeltaPct: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Complete(ctx, job.ID, models.Decision{FinalDecision: models.ActionMonitor, Confidence: 0.9}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	first, err := svc.ListDecisions(ctx, 0)
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("listed %d jobs, want 1", len(first))
	}
	if provider.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", provider.sets)
	}

	second, err := svc.ListDecisions(ctx, 0)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("cached listing differs")
	}
	if provider.sets != 1 {
		t.Fatalf("second list should come from cache, saw %d fills", provider.sets)
	}
}

func TestServiceResetClearsJobsAndCache(t *testing.T) {
	ctx := context.Background()
	provider := newRecordingCache()
	svc, store, _ := newTestService(t, provider)

	job, _ := store.Create(ctx, models.Incident{Service: "a", Metric: "m", DeltaPct: 10})
	if err := store.Complete(ctx, job.ID, models.Decision{FinalDecision: models.ActionMonitor, Confidence: 0.9}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.ListDecisions(ctx, 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(provider.dels) == 0 {
		t.Fatalf("expected listing cache invalidation")
	}
	if _, err := store.Get(ctx, job.ID); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected jobs gone after reset, got %v", err)
	}
}

func TestServiceResetInvalidatesEveryListingLimit(t *testing.T) {
	ctx := context.Background()
	provider := newRecordingCache()
	svc, store, _ := newTestService(t, provider)

	job, _ := store.Create(ctx, models.Incident{Service: "a", Metric: "m", DeltaPct: 10})
	if err := store.Complete(ctx, job.ID, models.Decision{FinalDecision: models.ActionMonitor, Confidence: 0.9}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Prime cache entries for two different limits.
	if jobs, err := svc.ListDecisions(ctx, 5); err != nil || len(jobs) != 1 {
		t.Fatalf("prime limit=5: jobs=%d err=%v", len(jobs), err)
	}
	if jobs, err := svc.ListDecisions(ctx, 20); err != nil || len(jobs) != 1 {
		t.Fatalf("prime limit=20: jobs=%d err=%v", len(jobs), err)
	}

	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for _, limit := range []int{5, 20} {
		jobs, err := svc.ListDecisions(ctx, limit)
		if err != nil {
			t.Fatalf("list limit=%d after reset: %v", limit, err)
		}
		if len(jobs) != 0 {
			t.Fatalf("limit=%d listing after reset returned %d jobs, want 0", limit, len(jobs))
		}
	}
}

func TestServiceHealth(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if err := svc.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
