package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// RenderJobRepository is the durable job store. It is the single source of
// truth for job state; all cross-worker coordination happens through its
// conditional updates, never through in-process locks.
type RenderJobRepository interface {
	Create(ctx context.Context, job *model.RenderJob) error
	GetByID(ctx context.Context, id string) (*model.RenderJob, error)

	// ClaimNextPending atomically selects the oldest pending job, moves it to
	// processing, records the claim and increments attempts. It returns
	// (nil, nil) when no pending job exists. Two concurrent claimants can
	// never receive the same job.
	ClaimNextPending(ctx context.Context, workerID string) (*model.RenderJob, error)

	// UpdateProgress records monotonic progress; a stale write against a job
	// no longer in processing is silently dropped.
	UpdateProgress(ctx context.Context, id string, progress int) error

	// Complete and Fail transition processing to a terminal state. They are
	// guarded on the current state being processing, so calling them on a job
	// already terminal (or reclaimed) is a no-op.
	Complete(ctx context.Context, id string, result string) error
	Fail(ctx context.Context, id string, errMsg string) error

	// Release returns a processing job to pending for a later attempt.
	Release(ctx context.Context, id string) error

	// ReclaimStale returns every processing job claimed before cutoff back to
	// pending, clearing the claim. Returns the number of jobs reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	CountByState(ctx context.Context) (map[model.JobState]int, error)
}

type pgRenderJobRepository struct {
	db *sql.DB
}

func NewPgRenderJobRepository(db *sql.DB) RenderJobRepository {
	return &pgRenderJobRepository{db: db}
}

const jobColumns = `id, state, payload, progress, result, error, claimed_at, claimed_by, attempts, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*model.RenderJob, error) {
	job := &model.RenderJob{}
	err := row.Scan(
		&job.ID, &job.State, &job.Payload, &job.Progress, &job.Result, &job.Error,
		&job.ClaimedAt, &job.ClaimedBy, &job.Attempts, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *pgRenderJobRepository) Create(ctx context.Context, job *model.RenderJob) error {
	query := `INSERT INTO render_jobs (id, state, payload, progress, attempts, created_at, updated_at)
	          VALUES ($1, $2, $3, 0, 0, now(), now())`
	err := withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, job.ID, job.State, job.Payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgRenderJobRepository.Create: %w", err)
	}
	return nil
}

func (r *pgRenderJobRepository) GetByID(ctx context.Context, id string) (*model.RenderJob, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE id = $1`
	var job *model.RenderJob
	err := withRetry(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(r.db.QueryRowContext(ctx, query, id))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgRenderJobRepository.GetByID: %w", err)
	}
	return job, nil
}

// ClaimNextPending is the correctness-critical primitive: a single conditional
// update that selects, locks and transitions one pending job. SKIP LOCKED
// keeps concurrent claimants from blocking on or double-claiming the same row.
func (r *pgRenderJobRepository) ClaimNextPending(ctx context.Context, workerID string) (*model.RenderJob, error) {
	query := `UPDATE render_jobs SET
	            state = $2,
	            claimed_at = now(),
	            claimed_by = $1,
	            attempts = attempts + 1,
	            updated_at = now()
	          WHERE id = (
	            SELECT id FROM render_jobs
	            WHERE state = $3
	            ORDER BY created_at, id
	            FOR UPDATE SKIP LOCKED
	            LIMIT 1
	          )
	          RETURNING ` + jobColumns
	var job *model.RenderJob
	err := withRetry(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(r.db.QueryRowContext(ctx, query, workerID, model.JobStateProcessing, model.JobStatePending))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // empty queue is an expected idle condition
		}
		return nil, fmt.Errorf("pgRenderJobRepository.ClaimNextPending: %w", err)
	}
	return job, nil
}

func (r *pgRenderJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	query := `UPDATE render_jobs SET progress = GREATEST(progress, $2), updated_at = now()
	          WHERE id = $1 AND state = $3`
	err := withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, id, progress, model.JobStateProcessing)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgRenderJobRepository.UpdateProgress: %w", err)
	}
	return nil
}

func (r *pgRenderJobRepository) Complete(ctx context.Context, id string, result string) error {
	query := `UPDATE render_jobs SET state = $3, result = $2, error = NULL, progress = 100, updated_at = now()
	          WHERE id = $1 AND state = $4`
	err := withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, id, result, model.JobStateCompleted, model.JobStateProcessing)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgRenderJobRepository.Complete: %w", err)
	}
	return nil
}

func (r *pgRenderJobRepository) Fail(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE render_jobs SET state = $3, error = $2, result = NULL, updated_at = now()
	          WHERE id = $1 AND state = $4`
	err := withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, id, errMsg, model.JobStateFailed, model.JobStateProcessing)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgRenderJobRepository.Fail: %w", err)
	}
	return nil
}

func (r *pgRenderJobRepository) Release(ctx context.Context, id string) error {
	query := `UPDATE render_jobs SET state = $2, claimed_at = NULL, claimed_by = NULL,
	            error = NULL, progress = 0, updated_at = now()
	          WHERE id = $1 AND state = $3`
	err := withRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, id, model.JobStatePending, model.JobStateProcessing)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgRenderJobRepository.Release: %w", err)
	}
	return nil
}

func (r *pgRenderJobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE render_jobs SET state = $2, claimed_at = NULL, claimed_by = NULL,
	            progress = 0, updated_at = now()
	          WHERE state = $3 AND claimed_at < $1`
	var reclaimed int64
	err := withRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, query, cutoff, model.JobStatePending, model.JobStateProcessing)
		if err != nil {
			return err
		}
		reclaimed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pgRenderJobRepository.ReclaimStale: %w", err)
	}
	return reclaimed, nil
}

func (r *pgRenderJobRepository) CountByState(ctx context.Context) (map[model.JobState]int, error) {
	query := `SELECT state, COUNT(1) FROM render_jobs GROUP BY state`
	counts := make(map[model.JobState]int)
	err := withRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var state model.JobState
			var count int
			if err := rows.Scan(&state, &count); err != nil {
				return err
			}
			counts[state] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("pgRenderJobRepository.CountByState: %w", err)
	}
	return counts, nil
}

const (
	storeRetryCount = 3
	storeRetryDelay = 100 * time.Millisecond
)

// withRetry re-runs an operation a small bounded number of times when the
// failure is a transient connectivity problem. Anything still failing after
// the last attempt surfaces wrapped in common.ErrStore so callers can treat
// it as a transient store outage.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < storeRetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(storeRetryDelay):
			}
		}
		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStore, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 - connection exception, 40001/40P01 - retryable aborts.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return true
		}
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
