// Package memory provides in-process implementations of the driven ports.
// They back single-instance deployments without DATABASE_URL and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/crypto"
)

const (
	// DefaultMaxOAuthStates bounds pending flows held in memory.
	DefaultMaxOAuthStates = 10000

	// cleanupEvery sweeps expired states every N inserts.
	cleanupEvery = 100
)

var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

// OAuthStateStore keeps pending flows in a map guarded by a mutex.
type OAuthStateStore struct {
	mu         sync.Mutex
	states     map[string]*domain.OAuthStateEntry
	ttl        time.Duration
	maxEntries int
	inserts    int
	now        func() time.Time
}

// NewOAuthStateStore creates a store whose entries expire after ttl.
func NewOAuthStateStore(ttl time.Duration) *OAuthStateStore {
	return &OAuthStateStore{
		states:     make(map[string]*domain.OAuthStateEntry),
		ttl:        ttl,
		maxEntries: DefaultMaxOAuthStates,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *OAuthStateStore) WithClock(now func() time.Time) *OAuthStateStore {
	s.now = now
	return s
}

// WithMaxEntries overrides the capacity bound.
func (s *OAuthStateStore) WithMaxEntries(n int) *OAuthStateStore {
	s.maxEntries = n
	return s
}

// Store records the flow under a new random state.
func (s *OAuthStateStore) Store(ctx context.Context, userID string, platform domain.Platform, codeVerifier string) (string, error) {
	state, err := crypto.GenerateState()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++
	if s.inserts%cleanupEvery == 0 || len(s.states) >= s.maxEntries {
		s.cleanupLocked()
	}
	if len(s.states) >= s.maxEntries {
		return "", fmt.Errorf("%w: too many pending oauth states", domain.ErrServiceUnavailable)
	}

	s.states[state] = &domain.OAuthStateEntry{
		State:        state,
		UserID:       userID,
		Platform:     platform,
		CodeVerifier: codeVerifier,
		CreatedAt:    s.now(),
	}
	return state, nil
}

// Retrieve returns and deletes the entry. Expired entries are deleted and
// reported as absent.
func (s *OAuthStateStore) Retrieve(ctx context.Context, state string) (*domain.OAuthStateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return nil, nil
	}
	delete(s.states, state)

	if entry.IsExpired(s.now(), s.ttl) {
		return nil, nil
	}
	return entry, nil
}

// Cleanup removes expired states.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	return nil
}

// Run sweeps expired states every interval until ctx is cancelled.
func (s *OAuthStateStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Cleanup(ctx)
		}
	}
}

// Len returns the number of held entries, expired or not.
func (s *OAuthStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *OAuthStateStore) cleanupLocked() {
	now := s.now()
	for key, entry := range s.states {
		if entry.IsExpired(now, s.ttl) {
			delete(s.states, key)
		}
	}
}
