package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/decisionstack/decision-engine/internal/engine"
	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/queue"
	"github.com/decisionstack/decision-engine/internal/registry"
)

func startPool(t *testing.T, store registry.Store, q queue.Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(nil, store, q, engine.NewPipeline(nil, nil, nil), PoolConfig{Workers: 2}, nil)
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("pool did not stop")
		}
	})
	return cancel
}

func awaitTerminal(t *testing.T, store registry.Store, id string) models.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return models.Job{}
}

func TestPoolCompletesValidIncident(t *testing.T) {
	store := registry.NewMemoryStore(0, nil)
	q := queue.NewMemoryQueue(8)
	defer q.Close()
	startPool(t, store, q)

	d := NewDispatcher(nil, store, q)
	id, err := d.Submit(context.Background(), models.Incident{
		Service:  "payment-api",
		Metric:   "latency_p99",
		DeltaPct: 400,
		Severity: models.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := awaitTerminal(t, store, id)
	if job.State != models.JobCompleted {
		t.Fatalf("job state = %s (error %+v), want completed", job.State, job.Error)
	}
	if job.Result == nil || job.Result.FinalDecision != models.ActionDeclareSev1 {
		t.Fatalf("unexpected result %+v", job.Result)
	}
	if len(job.Result.ReasoningTrace) != 4 {
		t.Fatalf("trace length = %d, want 4", len(job.Result.ReasoningTrace))
	}
}

func TestPoolFailsInvalidIncident(t *testing.T) {
	store := registry.NewMemoryStore(0, nil)
	q := queue.NewMemoryQueue(8)
	defer q.Close()
	startPool(t, store, q)

	d := NewDispatcher(nil, store, q)
	id, err := d.Submit(context.Background(), models.Incident{Metric: "latency_p99", DeltaPct: 100})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := awaitTerminal(t, store, id)
	if job.State != models.JobFailed {
		t.Fatalf("job state = %s, want failed", job.State)
	}
	if job.Error == nil || job.Error.Code != models.ErrCodeInvalidInput {
		t.Fatalf("unexpected failure info: %+v", job.Error)
	}
	if job.Error.Message == "" {
		t.Fatalf("expected a client-visible failure reason")
	}
}

func TestPoolProcessesManyJobs(t *testing.T) {
	store := registry.NewMemoryStore(0, nil)
	q := queue.NewMemoryQueue(64)
	defer q.Close()
	startPool(t, store, q)

	d := NewDispatcher(nil, store, q)
	var ids []string
	for i := 0; i < 20; i++ {
		id, err := d.Submit(context.Background(), models.Incident{
			Service:  fmt.Sprintf("svc-%d", i),
			Metric:   "error_rate",
			DeltaPct: float64(20 * i),
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		job := awaitTerminal(t, store, id)
		if job.State != models.JobCompleted {
			t.Fatalf("job %s state = %s, want completed", id, job.State)
		}
	}
}

func TestFailureInfoMapping(t *testing.T) {
	abort := engine.Abort(models.ErrCodeInvalidInput, "missing service")
	info := failureInfo(abort)
	if info.Code != models.ErrCodeInvalidInput || info.Message != "missing service" {
		t.Fatalf("abort mapping wrong: %+v", info)
	}

	info = failureInfo(errors.New("nil pointer dereference somewhere deep"))
	if info.Code != models.ErrCodeStageInternal {
		t.Fatalf("internal mapping wrong: %+v", info)
	}
	if info.Message != "internal pipeline error" {
		t.Fatalf("internal detail leaked to client: %q", info.Message)
	}
}
