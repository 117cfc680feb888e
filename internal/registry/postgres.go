package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/utils"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          UUID PRIMARY KEY,
    state       TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    incident    JSONB NOT NULL,
    result      JSONB,
    error       JSONB,
    lease_until TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_state_created_idx ON jobs (state, created_at DESC);
`

// PostgresStore persists jobs in a Postgres table keyed by id, with the
// incident, decision, and error serialized as JSON. Terminal writes use
// conditional updates so exactly one of racing Complete/Fail calls wins.
type PostgresStore struct {
	pool     *pgxpool.Pool
	leaseTTL time.Duration
}

// NewPostgresStore connects to dsn and ensures the jobs table exists.
func NewPostgresStore(ctx context.Context, dsn string, leaseTTL time.Duration) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Second
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, utils.NewAppError("registry.connect", "create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, utils.NewAppError("registry.connect", "ping database", err)
	}
	if _, err := pool.Exec(ctx, jobsSchema); err != nil {
		pool.Close()
		return nil, utils.NewAppError("registry.connect", "ensure schema", err)
	}
	return &PostgresStore{pool: pool, leaseTTL: leaseTTL}, nil
}

func (s *PostgresStore) Create(ctx context.Context, incident models.Incident) (models.Job, error) {
	job := models.Job{
		ID:        uuid.NewString(),
		State:     models.JobProcessing,
		CreatedAt: time.Now().UTC(),
		Incident:  incident,
	}
	payload, err := json.Marshal(incident)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal incident: %w", err)
	}

	// Stretched deadline until a worker claims the job via Heartbeat.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, state, created_at, incident, lease_until) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.State, job.CreatedAt, payload, job.CreatedAt.Add(s.leaseTTL*queuedLeaseFactor),
	)
	if err != nil {
		return models.Job{}, utils.NewAppError("registry.create", "insert job", err)
	}
	return job, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Job, error) {
	var (
		job      models.Job
		incident []byte
		result   []byte
		errInfo  []byte
	)
	row := s.pool.QueryRow(ctx,
		`SELECT id, state, created_at, incident, result, error FROM jobs WHERE id = $1`, id)
	if err := row.Scan(&job.ID, &job.State, &job.CreatedAt, &incident, &result, &errInfo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, ErrNotFound
		}
		return models.Job{}, utils.NewAppError("registry.get", "query job", err)
	}

	if err := json.Unmarshal(incident, &job.Incident); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal incident: %w", err)
	}
	if len(result) > 0 {
		var dec models.Decision
		if err := json.Unmarshal(result, &dec); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal decision: %w", err)
		}
		job.Result = &dec
	}
	if len(errInfo) > 0 {
		var info models.ErrorInfo
		if err := json.Unmarshal(errInfo, &info); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal error info: %w", err)
		}
		job.Error = &info
	}
	return job, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, decision models.Decision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $2, result = $3, lease_until = NULL WHERE id = $1 AND state = $4`,
		id, models.JobCompleted, payload, models.JobProcessing,
	)
	if err != nil {
		return utils.NewAppError("registry.complete", "update job", err)
	}
	if ct.RowsAffected() == 0 {
		return s.terminalWriteConflict(ctx, id)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id string, info models.ErrorInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal error info: %w", err)
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $2, error = $3, lease_until = NULL WHERE id = $1 AND state = $4`,
		id, models.JobFailed, payload, models.JobProcessing,
	)
	if err != nil {
		return utils.NewAppError("registry.fail", "update job", err)
	}
	if ct.RowsAffected() == 0 {
		return s.terminalWriteConflict(ctx, id)
	}
	return nil
}

// terminalWriteConflict distinguishes a lost terminal-write race from an
// unknown id after an update matched no rows.
func (s *PostgresStore) terminalWriteConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return utils.NewAppError("registry.conflict", "check job existence", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *PostgresStore) ListCompleted(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return []models.Job{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, state, created_at, incident, result, error FROM jobs
         WHERE state = $1 ORDER BY created_at DESC LIMIT $2`,
		models.JobCompleted, limit,
	)
	if err != nil {
		return nil, utils.NewAppError("registry.list", "query completed jobs", err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0, limit)
	for rows.Next() {
		var (
			job      models.Job
			incident []byte
			result   []byte
			errInfo  []byte
		)
		if err := rows.Scan(&job.ID, &job.State, &job.CreatedAt, &incident, &result, &errInfo); err != nil {
			return nil, utils.NewAppError("registry.list", "scan job", err)
		}
		if err := json.Unmarshal(incident, &job.Incident); err != nil {
			return nil, fmt.Errorf("unmarshal incident: %w", err)
		}
		if len(result) > 0 {
			var dec models.Decision
			if err := json.Unmarshal(result, &dec); err != nil {
				return nil, fmt.Errorf("unmarshal decision: %w", err)
			}
			job.Result = &dec
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) Heartbeat(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE jobs SET lease_until = $2 WHERE id = $1 AND state = $3`,
		id, time.Now().UTC().Add(s.leaseTTL), models.JobProcessing,
	)
	if err != nil {
		return utils.NewAppError("registry.heartbeat", "extend lease", err)
	}
	if ct.RowsAffected() == 0 {
		return s.terminalWriteConflict(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ExpireLeases(ctx context.Context) (int, error) {
	payload, err := json.Marshal(staleLeaseInfo)
	if err != nil {
		return 0, fmt.Errorf("marshal error info: %w", err)
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $1, error = $2, lease_until = NULL
         WHERE state = $3 AND lease_until < NOW()`,
		models.JobFailed, payload, models.JobProcessing,
	)
	if err != nil {
		return 0, utils.NewAppError("registry.expire", "recover stale jobs", err)
	}
	return int(ct.RowsAffected()), nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs`); err != nil {
		return utils.NewAppError("registry.reset", "delete jobs", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
