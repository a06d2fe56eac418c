package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/crypto"
)

// Ensure OAuthStateStore implements the interface.
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

// OAuthStateStore implements driven.OAuthStateStore using PostgreSQL.
type OAuthStateStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewOAuthStateStore creates a PostgreSQL-backed OAuth state store.
func NewOAuthStateStore(db *sql.DB, ttl time.Duration) *OAuthStateStore {
	return &OAuthStateStore{db: db, ttl: ttl, now: time.Now}
}

// Store inserts a pending flow under a new state.
func (s *OAuthStateStore) Store(ctx context.Context, userID string, platform domain.Platform, codeVerifier string) (string, error) {
	state, err := crypto.GenerateState()
	if err != nil {
		return "", err
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, platform, code_verifier, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, state, userID, string(platform), codeVerifier, now, now.Add(s.ttl))
	if err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}

	return state, nil
}

// Retrieve atomically retrieves and deletes the state.
// Uses DELETE ... RETURNING for atomic single-use semantics. The row is
// removed even when it has expired; expiry is checked afterwards.
func (s *OAuthStateStore) Retrieve(ctx context.Context, state string) (*domain.OAuthStateEntry, error) {
	var entry domain.OAuthStateEntry
	var platform string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, user_id, platform, code_verifier, created_at, expires_at
	`, state).Scan(&entry.State, &entry.UserID, &platform, &entry.CodeVerifier, &entry.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete oauth state: %w", err)
	}
	if !s.now().Before(expiresAt) {
		return nil, nil
	}

	entry.Platform = domain.Platform(platform)
	return &entry, nil
}

// Cleanup removes expired states.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("cleanup oauth states: %w", err)
	}
	return nil
}
