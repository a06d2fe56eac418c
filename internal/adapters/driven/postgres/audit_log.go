package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog writes OAuth attempts to the oauth_attempts table.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog creates a PostgreSQL-backed audit log.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (l *AuditLog) RecordAttempt(ctx context.Context, a *domain.OAuthAttempt) error {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO oauth_attempts (id, user_id, platform, success, error, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, nullString(a.UserID), string(a.Platform), a.Success, nullString(a.Error), nullString(a.IPAddress), createdAt)
	if err != nil {
		return fmt.Errorf("record oauth attempt: %w", err)
	}
	return nil
}

func (l *AuditLog) ListAttempts(ctx context.Context, userID string, limit int) ([]*domain.OAuthAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, platform, success, error, ip_address, created_at
		FROM oauth_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list oauth attempts: %w", err)
	}
	defer rows.Close()

	var out []*domain.OAuthAttempt
	for rows.Next() {
		var a domain.OAuthAttempt
		var platform string
		var uid, errMsg, ip sql.NullString
		if err := rows.Scan(&a.ID, &uid, &platform, &a.Success, &errMsg, &ip, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan oauth attempt: %w", err)
		}
		a.UserID = uid.String
		a.Platform = domain.Platform(platform)
		a.Error = errMsg.String
		a.IPAddress = ip.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
