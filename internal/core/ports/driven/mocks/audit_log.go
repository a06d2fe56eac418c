package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

var _ driven.AuditLog = (*MockAuditLog)(nil)

// MockAuditLog collects attempts in memory. Set Err to make every write fail.
type MockAuditLog struct {
	mu       sync.Mutex
	Attempts []*domain.OAuthAttempt
	Err      error
}

func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

func (m *MockAuditLog) RecordAttempt(ctx context.Context, attempt *domain.OAuthAttempt) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, attempt)
	return nil
}

func (m *MockAuditLog) ListAttempts(ctx context.Context, userID string, limit int) ([]*domain.OAuthAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.OAuthAttempt
	for i := len(m.Attempts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.Attempts[i].UserID == userID {
			out = append(out, m.Attempts[i])
		}
	}
	return out, nil
}

// Snapshot returns a copy of the recorded attempts.
func (m *MockAuditLog) Snapshot() []*domain.OAuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.OAuthAttempt(nil), m.Attempts...)
}
