package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// Ensure ConnectionStore implements the interface.
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore implements driven.ConnectionStore using PostgreSQL.
// Token columns only ever hold ciphertext produced by the service layer.
type ConnectionStore struct {
	db *sql.DB
}

// NewConnectionStore creates a PostgreSQL-backed connection store.
func NewConnectionStore(db *sql.DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const connectionColumns = `
	id, user_id, platform, access_token, refresh_token, token_expires_at,
	platform_user_id, platform_username, scopes_granted, connected_at,
	last_synced, is_active, updated_at
`

// Upsert inserts or overwrites the (user_id, platform) row in one statement.
func (s *ConnectionStore) Upsert(ctx context.Context, rec *driven.ConnectionRecord, policy domain.ConnectedAtPolicy) (*driven.ConnectionRecord, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO platform_connections (
			id, user_id, platform, access_token, refresh_token, token_expires_at,
			platform_user_id, platform_username, scopes_granted, connected_at,
			is_active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			platform_user_id = EXCLUDED.platform_user_id,
			platform_username = EXCLUDED.platform_username,
			scopes_granted = EXCLUDED.scopes_granted,
			connected_at = CASE WHEN $12 THEN EXCLUDED.connected_at ELSE platform_connections.connected_at END,
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + connectionColumns

	row := s.db.QueryRowContext(ctx, query,
		id,
		rec.UserID,
		string(rec.Platform),
		rec.AccessTokenEncrypted,
		nullString(rec.RefreshTokenEncrypted),
		nullTime(rec.TokenExpiresAt),
		rec.PlatformUserID,
		nullString(rec.PlatformUsername),
		pq.Array(rec.ScopesGranted),
		rec.ConnectedAt,
		rec.UpdatedAt,
		policy == domain.ConnectedAtReset,
	)

	saved, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}
	return saved, nil
}

// Get returns the connection for (user, platform) or nil, nil.
func (s *ConnectionStore) Get(ctx context.Context, userID string, platform domain.Platform) (*driven.ConnectionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM platform_connections
		WHERE user_id = $1 AND platform = $2
	`, userID, string(platform))

	rec, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return rec, nil
}

// List returns the active connections of a user ordered by platform.
func (s *ConnectionStore) List(ctx context.Context, userID string) ([]*driven.ConnectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM platform_connections
		WHERE user_id = $1 AND is_active
		ORDER BY platform
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []*driven.ConnectionRecord
	for rows.Next() {
		rec, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateTokens replaces the token columns after a refresh.
func (s *ConnectionStore) UpdateTokens(ctx context.Context, userID string, platform domain.Platform, u driven.TokenUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE platform_connections
		SET access_token = $3, refresh_token = $4, token_expires_at = $5, updated_at = $6
		WHERE user_id = $1 AND platform = $2
	`, userID, string(platform), u.AccessTokenEncrypted, nullString(u.RefreshTokenEncrypted), nullTime(u.TokenExpiresAt), u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	return requireRow(res)
}

// SetActive flips the active flag.
func (s *ConnectionStore) SetActive(ctx context.Context, userID string, platform domain.Platform, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE platform_connections SET is_active = $3, updated_at = NOW()
		WHERE user_id = $1 AND platform = $2
	`, userID, string(platform), active)
	if err != nil {
		return fmt.Errorf("set connection active: %w", err)
	}
	return requireRow(res)
}

// MarkSynced stamps last_synced.
func (s *ConnectionStore) MarkSynced(ctx context.Context, userID string, platform domain.Platform, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE platform_connections SET last_synced = $3
		WHERE user_id = $1 AND platform = $2
	`, userID, string(platform), at)
	if err != nil {
		return fmt.Errorf("mark connection synced: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*driven.ConnectionRecord, error) {
	var rec driven.ConnectionRecord
	var platform string
	var refreshToken, username sql.NullString
	var expiresAt, lastSynced sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&platform,
		&rec.AccessTokenEncrypted,
		&refreshToken,
		&expiresAt,
		&rec.PlatformUserID,
		&username,
		pq.Array(&rec.ScopesGranted),
		&rec.ConnectedAt,
		&lastSynced,
		&rec.IsActive,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Platform = domain.Platform(platform)
	rec.RefreshTokenEncrypted = refreshToken.String
	rec.PlatformUsername = username.String
	rec.TokenExpiresAt = timePtr(expiresAt)
	rec.LastSynced = timePtr(lastSynced)
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
