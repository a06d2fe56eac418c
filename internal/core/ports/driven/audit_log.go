package driven

import (
	"context"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// AuditLog records OAuth callback outcomes.
type AuditLog interface {
	// RecordAttempt stores one attempt. Callers treat failures as best effort.
	RecordAttempt(ctx context.Context, attempt *domain.OAuthAttempt) error

	// ListAttempts returns the most recent attempts of a user, newest first.
	ListAttempts(ctx context.Context, userID string, limit int) ([]*domain.OAuthAttempt, error)
}
