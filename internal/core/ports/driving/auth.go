package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// AuthService authenticates API callers by bearer token.
type AuthService interface {
	// ValidateToken validates a JWT token and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// IssueToken signs a token for the user, valid for ttl.
	IssueToken(ctx context.Context, userID, email string, ttl time.Duration) (string, error)
}
