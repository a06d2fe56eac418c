package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// Ensure RefreshJobStore implements the interface.
var _ driven.RefreshJobStore = (*RefreshJobStore)(nil)

// RefreshJobStore persists refresh jobs so schedules survive restarts.
type RefreshJobStore struct {
	db *sql.DB
}

// NewRefreshJobStore creates a PostgreSQL-backed refresh job store.
func NewRefreshJobStore(db *sql.DB) *RefreshJobStore {
	return &RefreshJobStore{db: db}
}

const refreshJobColumns = `user_id, platform, interval_seconds, next_run_at, last_run_at, last_error, attempts, created_at`

func (s *RefreshJobStore) Save(ctx context.Context, job *domain.RefreshJob) error {
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_jobs (`+refreshJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			interval_seconds = EXCLUDED.interval_seconds,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			last_error = EXCLUDED.last_error,
			attempts = EXCLUDED.attempts
	`,
		job.UserID,
		string(job.Platform),
		int64(job.Interval/time.Second),
		job.NextRunAt,
		nullTime(job.LastRunAt),
		nullString(job.LastError),
		job.Attempts,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("save refresh job: %w", err)
	}
	return nil
}

func (s *RefreshJobStore) Get(ctx context.Context, userID string, platform domain.Platform) (*domain.RefreshJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+refreshJobColumns+` FROM refresh_jobs WHERE user_id = $1 AND platform = $2
	`, userID, string(platform))

	job, err := scanRefreshJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh job: %w", err)
	}
	return job, nil
}

func (s *RefreshJobStore) Due(ctx context.Context, now time.Time, limit int) ([]*domain.RefreshJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+refreshJobColumns+`
		FROM refresh_jobs
		WHERE next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due refresh jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.RefreshJob
	for rows.Next() {
		job, err := scanRefreshJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *RefreshJobStore) Reschedule(ctx context.Context, userID string, platform domain.Platform, ranAt, nextRunAt time.Time, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_jobs SET
			last_run_at = $3,
			next_run_at = $4,
			last_error = $5,
			attempts = CASE WHEN $5::text IS NULL THEN 0 ELSE attempts + 1 END
		WHERE user_id = $1 AND platform = $2
	`, userID, string(platform), ranAt, nextRunAt, nullString(lastError))
	if err != nil {
		return fmt.Errorf("reschedule refresh job: %w", err)
	}
	return requireRow(res)
}

func (s *RefreshJobStore) Delete(ctx context.Context, userID string, platform domain.Platform) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_jobs WHERE user_id = $1 AND platform = $2`, userID, string(platform))
	if err != nil {
		return fmt.Errorf("delete refresh job: %w", err)
	}
	return nil
}

func (s *RefreshJobStore) CountDue(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM refresh_jobs WHERE next_run_at <= $1`, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count due refresh jobs: %w", err)
	}
	return n, nil
}

func scanRefreshJob(row rowScanner) (*domain.RefreshJob, error) {
	var job domain.RefreshJob
	var platform string
	var intervalSeconds int64
	var lastRunAt sql.NullTime
	var lastError sql.NullString

	if err := row.Scan(
		&job.UserID,
		&platform,
		&intervalSeconds,
		&job.NextRunAt,
		&lastRunAt,
		&lastError,
		&job.Attempts,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}

	job.Platform = domain.Platform(platform)
	job.Interval = time.Duration(intervalSeconds) * time.Second
	job.LastRunAt = timePtr(lastRunAt)
	job.LastError = lastError.String
	return &job, nil
}
