package driven

import (
	"context"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// PlatformAdapter hides the OAuth dialect of one platform behind a
// uniform contract. Implementations log upstream failures and return
// sanitized errors wrapping the matching domain sentinel
// (ErrTokenExchangeFailed, ErrTokenRefreshFailed, ErrUserInfoFailed);
// raw upstream bodies never leave the adapter.
type PlatformAdapter interface {
	// Platform returns the platform this adapter serves.
	Platform() domain.Platform

	// Configured reports whether client credentials are present.
	Configured() bool

	// Scopes returns the scopes requested during authorization.
	Scopes() []string

	// RefreshPolicy describes how tokens of this platform are kept alive.
	RefreshPolicy() domain.RefreshPolicy

	// BuildAuthorizationURL returns the platform consent URL.
	BuildAuthorizationURL(state, codeChallenge string) string

	// ExchangeCodeForTokens trades an authorization code for tokens.
	ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*domain.OAuthTokens, error)

	// RefreshAccessToken obtains fresh tokens. credential is the refresh
	// token, or the access token for platforms whose policy says so.
	RefreshAccessToken(ctx context.Context, credential string) (*domain.OAuthTokens, error)

	// GetUserInfo returns the platform identity of the token owner.
	GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error)
}

// PlatformRegistry resolves adapters by platform.
type PlatformRegistry interface {
	// Get returns the adapter, or false if the platform is not registered.
	Get(platform domain.Platform) (PlatformAdapter, bool)

	// Platforms returns every registered platform.
	Platforms() []domain.Platform
}
