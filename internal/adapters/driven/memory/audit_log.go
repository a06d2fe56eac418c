package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// maxAttempts bounds the in-memory audit trail; oldest entries are dropped.
const maxAttempts = 1000

var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is a bounded in-memory attempt log.
type AuditLog struct {
	mu       sync.Mutex
	attempts []*domain.OAuthAttempt
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) RecordAttempt(ctx context.Context, attempt *domain.OAuthAttempt) error {
	a := *attempt
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts = append(l.attempts, &a)
	if len(l.attempts) > maxAttempts {
		l.attempts = l.attempts[len(l.attempts)-maxAttempts:]
	}
	return nil
}

func (l *AuditLog) ListAttempts(ctx context.Context, userID string, limit int) ([]*domain.OAuthAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.OAuthAttempt
	for i := len(l.attempts) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if l.attempts[i].UserID == userID {
			c := *l.attempts[i]
			out = append(out, &c)
		}
	}
	return out, nil
}
