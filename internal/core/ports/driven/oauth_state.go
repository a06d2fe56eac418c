package driven

import (
	"context"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// OAuthStateStore manages OAuth flow state for CSRF protection.
// States are single-use and expire after a short period.
type OAuthStateStore interface {
	// Store records a pending flow and returns the freshly generated state
	// token that identifies it.
	Store(ctx context.Context, userID string, platform domain.Platform, codeVerifier string) (string, error)

	// Retrieve atomically retrieves and deletes the state.
	// Returns nil, nil if the state doesn't exist, was already consumed or has expired.
	Retrieve(ctx context.Context, state string) (*domain.OAuthStateEntry, error)

	// Cleanup removes expired states.
	// Should be called periodically to clean up abandoned flows.
	Cleanup(ctx context.Context) error
}
