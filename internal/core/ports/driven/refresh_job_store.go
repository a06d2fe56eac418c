package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// RefreshJobStore persists proactive refresh jobs so schedules survive restarts.
type RefreshJobStore interface {
	// Save creates or replaces the job for (UserID, Platform).
	Save(ctx context.Context, job *domain.RefreshJob) error

	// Get returns the job or nil, nil when none exists.
	Get(ctx context.Context, userID string, platform domain.Platform) (*domain.RefreshJob, error)

	// Due returns up to limit jobs whose NextRunAt is not after now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*domain.RefreshJob, error)

	// Reschedule records a run and moves the job to nextRunAt.
	// An empty lastError clears the previous error and resets attempts.
	Reschedule(ctx context.Context, userID string, platform domain.Platform, ranAt, nextRunAt time.Time, lastError string) error

	// Delete removes the job. Deleting a missing job is not an error.
	Delete(ctx context.Context, userID string, platform domain.Platform) error

	// CountDue returns the number of jobs due at now.
	CountDue(ctx context.Context, now time.Time) (int, error)
}
