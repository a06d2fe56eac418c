package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/crypto"
)

// Verify interface compliance
var _ driven.OAuthStateStore = (*OAuthStateStore)(nil)

const oauthStatePrefix = "sercha-social:oauth:state:"

// OAuthStateStore keeps pending flows in Redis so any instance can
// complete a callback. Expiry is delegated to key TTLs.
type OAuthStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOAuthStateStore creates a Redis-backed state store.
func NewOAuthStateStore(client *redis.Client, ttl time.Duration) *OAuthStateStore {
	return &OAuthStateStore{client: client, ttl: ttl}
}

// Store writes the entry under a new state with the configured TTL.
func (s *OAuthStateStore) Store(ctx context.Context, userID string, platform domain.Platform, codeVerifier string) (string, error) {
	state, err := crypto.GenerateState()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(&domain.OAuthStateEntry{
		State:        state,
		UserID:       userID,
		Platform:     platform,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal oauth state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, oauthStatePrefix+state, data, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("save oauth state: state collision")
	}
	return state, nil
}

// Retrieve consumes the entry with GETDEL so concurrent callbacks cannot
// both succeed.
func (s *OAuthStateStore) Retrieve(ctx context.Context, state string) (*domain.OAuthStateEntry, error) {
	data, err := s.client.GetDel(ctx, oauthStatePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth state: %w", err)
	}

	var entry domain.OAuthStateEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal oauth state: %w", err)
	}

	// Guards against keys written without TTL or clock skew across instances.
	if entry.IsExpired(time.Now(), s.ttl) {
		return nil, nil
	}
	return &entry, nil
}

// Cleanup is a no-op; Redis expires keys on its own.
func (s *OAuthStateStore) Cleanup(ctx context.Context) error {
	return nil
}
