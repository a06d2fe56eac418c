package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

var _ driven.ConnectionStore = (*ConnectionStore)(nil)

type connectionKey struct {
	userID   string
	platform domain.Platform
}

// ConnectionStore keeps connections keyed by (user, platform).
type ConnectionStore struct {
	mu    sync.RWMutex
	items map[connectionKey]*driven.ConnectionRecord
}

func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{items: make(map[connectionKey]*driven.ConnectionRecord)}
}

func (s *ConnectionStore) Upsert(ctx context.Context, record *driven.ConnectionRecord, policy domain.ConnectedAtPolicy) (*driven.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connectionKey{record.UserID, record.Platform}
	stored := cloneRecord(record)
	stored.IsActive = true

	if existing, ok := s.items[key]; ok {
		stored.ID = existing.ID
		stored.LastSynced = existing.LastSynced
		if policy != domain.ConnectedAtReset {
			stored.ConnectedAt = existing.ConnectedAt
		}
	} else if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.items[key] = stored
	return cloneRecord(stored), nil
}

func (s *ConnectionStore) Get(ctx context.Context, userID string, platform domain.Platform) (*driven.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[connectionKey{userID, platform}]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *ConnectionStore) List(ctx context.Context, userID string) ([]*driven.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*driven.ConnectionRecord
	for key, rec := range s.items {
		if key.userID == userID && rec.IsActive {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (s *ConnectionStore) UpdateTokens(ctx context.Context, userID string, platform domain.Platform, update driven.TokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[connectionKey{userID, platform}]
	if !ok {
		return domain.ErrNotFound
	}
	rec.AccessTokenEncrypted = update.AccessTokenEncrypted
	rec.RefreshTokenEncrypted = update.RefreshTokenEncrypted
	rec.TokenExpiresAt = update.TokenExpiresAt
	rec.UpdatedAt = update.UpdatedAt
	return nil
}

func (s *ConnectionStore) SetActive(ctx context.Context, userID string, platform domain.Platform, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[connectionKey{userID, platform}]
	if !ok {
		return domain.ErrNotFound
	}
	rec.IsActive = active
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *ConnectionStore) MarkSynced(ctx context.Context, userID string, platform domain.Platform, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[connectionKey{userID, platform}]
	if !ok {
		return domain.ErrNotFound
	}
	rec.LastSynced = &at
	return nil
}

func cloneRecord(r *driven.ConnectionRecord) *driven.ConnectionRecord {
	c := *r
	c.ScopesGranted = append([]string(nil), r.ScopesGranted...)
	if r.TokenExpiresAt != nil {
		t := *r.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	if r.LastSynced != nil {
		t := *r.LastSynced
		c.LastSynced = &t
	}
	return &c
}
