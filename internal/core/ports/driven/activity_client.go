package driven

import (
	"context"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// ActivityClient fetches recent account activity from a platform API.
type ActivityClient interface {
	// Platform returns the platform this client serves.
	Platform() domain.Platform

	// Activity returns up to max recent posts and mentions. A rate limit
	// that persists after one retry yields an error matching
	// domain.ErrRateLimited.
	Activity(ctx context.Context, accessToken string, max int) (*domain.Activity, error)
}
