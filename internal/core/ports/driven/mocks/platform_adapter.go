package mocks

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

var _ driven.PlatformAdapter = (*MockPlatformAdapter)(nil)

// MockPlatformAdapter is a scriptable PlatformAdapter.
// Every call is counted so tests can assert the upstream was (not) hit.
type MockPlatformAdapter struct {
	mu sync.Mutex

	PlatformValue domain.Platform
	Unconfigured  bool
	ScopesValue   []string
	Policy        domain.RefreshPolicy

	ExchangeFn func(code, verifier string) (*domain.OAuthTokens, error)
	RefreshFn  func(credential string) (*domain.OAuthTokens, error)
	// RefreshCtxFn takes precedence over RefreshFn when set.
	RefreshCtxFn func(ctx context.Context, credential string) (*domain.OAuthTokens, error)
	UserInfoFn   func(accessToken string) (*domain.PlatformUserInfo, error)

	ExchangeCalls     int
	RefreshCalls      int
	UserInfoCalls     int
	RefreshCredential []string
	LastVerifier      string
}

// NewMockPlatformAdapter creates a configured adapter with happy-path defaults.
func NewMockPlatformAdapter(platform domain.Platform) *MockPlatformAdapter {
	return &MockPlatformAdapter{
		PlatformValue: platform,
		ScopesValue:   []string{"read"},
	}
}

func (m *MockPlatformAdapter) Platform() domain.Platform { return m.PlatformValue }

func (m *MockPlatformAdapter) Configured() bool { return !m.Unconfigured }

func (m *MockPlatformAdapter) Scopes() []string { return m.ScopesValue }

func (m *MockPlatformAdapter) RefreshPolicy() domain.RefreshPolicy { return m.Policy }

// BuildAuthorizationURL returns a deterministic URL carrying state and challenge.
func (m *MockPlatformAdapter) BuildAuthorizationURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	return fmt.Sprintf("https://auth.example.com/%s/authorize?%s", m.PlatformValue, q.Encode())
}

func (m *MockPlatformAdapter) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*domain.OAuthTokens, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.LastVerifier = codeVerifier
	m.mu.Unlock()

	if m.ExchangeFn != nil {
		return m.ExchangeFn(code, codeVerifier)
	}
	return &domain.OAuthTokens{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresIn:    3600,
		Scope:        "read",
	}, nil
}

func (m *MockPlatformAdapter) RefreshAccessToken(ctx context.Context, credential string) (*domain.OAuthTokens, error) {
	m.mu.Lock()
	m.RefreshCalls++
	m.RefreshCredential = append(m.RefreshCredential, credential)
	m.mu.Unlock()

	if m.RefreshCtxFn != nil {
		return m.RefreshCtxFn(ctx, credential)
	}
	if m.RefreshFn != nil {
		return m.RefreshFn(credential)
	}
	return &domain.OAuthTokens{AccessToken: "refreshed-access", ExpiresIn: 3600}, nil
}

func (m *MockPlatformAdapter) GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	m.mu.Lock()
	m.UserInfoCalls++
	m.mu.Unlock()

	if m.UserInfoFn != nil {
		return m.UserInfoFn(accessToken)
	}
	return &domain.PlatformUserInfo{PlatformUserID: "platform-user-1", PlatformUsername: "gopher"}, nil
}

// Calls returns a snapshot of the call counters.
func (m *MockPlatformAdapter) Calls() (exchange, refresh, userInfo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExchangeCalls, m.RefreshCalls, m.UserInfoCalls
}

// MockPlatformRegistry is a map-backed PlatformRegistry.
type MockPlatformRegistry struct {
	Adapters map[domain.Platform]driven.PlatformAdapter
}

var _ driven.PlatformRegistry = (*MockPlatformRegistry)(nil)

// NewMockPlatformRegistry registers the given adapters.
func NewMockPlatformRegistry(adapters ...driven.PlatformAdapter) *MockPlatformRegistry {
	r := &MockPlatformRegistry{Adapters: make(map[domain.Platform]driven.PlatformAdapter)}
	for _, a := range adapters {
		r.Adapters[a.Platform()] = a
	}
	return r
}

func (r *MockPlatformRegistry) Get(platform domain.Platform) (driven.PlatformAdapter, bool) {
	a, ok := r.Adapters[platform]
	return a, ok
}

func (r *MockPlatformRegistry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.Adapters))
	for p := range r.Adapters {
		out = append(out, p)
	}
	return out
}
