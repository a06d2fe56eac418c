package driving

import (
	"context"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// ActivityService reads recent account activity for a connected platform.
type ActivityService interface {
	// GetActivity returns up to max recent posts and mentions using the
	// user's connection. Returns domain.ErrNotFound without a connection,
	// domain.ErrUnsupportedPlatform when the platform has no activity API
	// and an error matching domain.ErrRateLimited when the platform keeps
	// throttling.
	GetActivity(ctx context.Context, userID string, platform domain.Platform, max int) (*domain.Activity, error)
}
