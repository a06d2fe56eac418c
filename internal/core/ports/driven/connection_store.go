package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// ConnectionRecord is the persisted form of a platform connection.
// Token fields hold encrypted values only.
type ConnectionRecord struct {
	ID                    string
	UserID                string
	Platform              domain.Platform
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenExpiresAt        *time.Time
	PlatformUserID        string
	PlatformUsername      string
	ScopesGranted         []string
	ConnectedAt           time.Time
	LastSynced            *time.Time
	IsActive              bool
	UpdatedAt             time.Time
}

// TokenUpdate replaces the token material of an existing connection.
type TokenUpdate struct {
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenExpiresAt        *time.Time
	UpdatedAt             time.Time
}

// ConnectionStore persists platform connections keyed by (user, platform).
type ConnectionStore interface {
	// Upsert inserts the record or overwrites the existing row for the same
	// (UserID, Platform). The row is always left active. ConnectedAt of an
	// existing row is only replaced when policy is ConnectedAtReset.
	// Returns the stored record, including its ID and effective ConnectedAt.
	Upsert(ctx context.Context, record *ConnectionRecord, policy domain.ConnectedAtPolicy) (*ConnectionRecord, error)

	// Get returns the connection regardless of active flag.
	// Returns nil, nil if no row exists.
	Get(ctx context.Context, userID string, platform domain.Platform) (*ConnectionRecord, error)

	// List returns every active connection of a user.
	List(ctx context.Context, userID string) ([]*ConnectionRecord, error)

	// UpdateTokens replaces the token fields. Returns domain.ErrNotFound if no row exists.
	UpdateTokens(ctx context.Context, userID string, platform domain.Platform, update TokenUpdate) error

	// SetActive flips the active flag. Returns domain.ErrNotFound if no row exists.
	SetActive(ctx context.Context, userID string, platform domain.Platform, active bool) error

	// MarkSynced records the last time platform data was read.
	MarkSynced(ctx context.Context, userID string, platform domain.Platform, at time.Time) error
}
