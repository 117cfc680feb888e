package registry

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/decisionstack/decision-engine/internal/models"
)

// staleLeaseInfo is the client-visible reason attached to jobs recovered
// after a worker crash.
var staleLeaseInfo = models.ErrorInfo{
	Code:    models.ErrCodeStageInternal,
	Message: "worker lease expired",
}

type jobRecord struct {
	job        models.Job
	leaseUntil time.Time
}

// MemoryStore keeps jobs in process memory. It backs tests and single-binary
// deploys; the Postgres store carries the same contract durably.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*jobRecord
	order    []string
	leaseTTL time.Duration
	clock    clock.Clock
}

// NewMemoryStore creates an in-memory registry. A nil clock uses wall time.
func NewMemoryStore(leaseTTL time.Duration, clk clock.Clock) *MemoryStore {
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		jobs:     make(map[string]*jobRecord),
		leaseTTL: leaseTTL,
		clock:    clk,
	}
}

func (s *MemoryStore) Create(_ context.Context, incident models.Incident) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	job := models.Job{
		ID:        uuid.NewString(),
		State:     models.JobProcessing,
		CreatedAt: now,
		Incident:  incident,
	}
	// Unclaimed jobs get the stretched queue deadline; the first worker
	// heartbeat replaces it with the regular processing lease.
	s.jobs[job.ID] = &jobRecord{job: job, leaseUntil: now.Add(s.leaseTTL * queuedLeaseFactor)}
	s.order = append(s.order, job.ID)
	return cloneJob(job), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return cloneJob(rec.job), nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, decision models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.State != models.JobProcessing {
		return ErrConflict
	}
	dec := cloneDecision(decision)
	rec.job.State = models.JobCompleted
	rec.job.Result = &dec
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id string, info models.ErrorInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(id, info)
}

func (s *MemoryStore) failLocked(id string, info models.ErrorInfo) error {
	rec, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.State != models.JobProcessing {
		return ErrConflict
	}
	rec.job.State = models.JobFailed
	rec.job.Error = &info
	return nil
}

func (s *MemoryStore) ListCompleted(_ context.Context, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []models.Job{}, nil
	}
	jobs := make([]models.Job, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(jobs) < limit; i-- {
		rec, ok := s.jobs[s.order[i]]
		if !ok || rec.job.State != models.JobCompleted {
			continue
		}
		jobs = append(jobs, cloneJob(rec.job))
	}
	return jobs, nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.State != models.JobProcessing {
		return ErrConflict
	}
	rec.leaseUntil = s.clock.Now().UTC().Add(s.leaseTTL)
	return nil
}

func (s *MemoryStore) ExpireLeases(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	recovered := 0
	for id, rec := range s.jobs {
		if rec.job.State != models.JobProcessing {
			continue
		}
		if rec.leaseUntil.After(now) {
			continue
		}
		if err := s.failLocked(id, staleLeaseInfo); err == nil {
			recovered++
		}
	}
	return recovered, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*jobRecord)
	s.order = nil
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// cloneJob deep-copies a job so callers can never mutate the stored record.
func cloneJob(job models.Job) models.Job {
	if job.Result != nil {
		dec := cloneDecision(*job.Result)
		job.Result = &dec
	}
	if job.Error != nil {
		info := *job.Error
		job.Error = &info
	}
	return job
}

func cloneDecision(dec models.Decision) models.Decision {
	dec.ReasoningTrace = append([]models.TraceEntry(nil), dec.ReasoningTrace...)
	return dec
}
