// Package twitter implements the X (formerly Twitter) OAuth 2.0 adapter
// and a small API v2 client for account activity.
package twitter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// Endpoint is the X OAuth 2.0 endpoint. Confidential clients
// authenticate with HTTP basic auth.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// DefaultScopes are requested on every authorization. offline.access
// makes X issue a refresh token.
var DefaultScopes = []string{"tweet.read", "users.read", "offline.access"}

// Config holds adapter settings. Endpoint and APIURL are optional overrides.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Limiter      *RateLimiter

	Endpoint oauth2.Endpoint
	APIURL   string
}

// Ensure Adapter implements the interfaces.
var (
	_ driven.PlatformAdapter = (*Adapter)(nil)
	_ driven.ActivityClient  = (*Adapter)(nil)
)

// Adapter runs the X authorization code flow with PKCE.
type Adapter struct {
	*Client

	oauth *oauth2.Config
	now   func() time.Time
}

// New creates an X adapter.
func New(cfg Config) *Adapter {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = Endpoint
	}

	return &Adapter{
		Client: NewClient(cfg.APIURL, cfg.HTTPClient, cfg.Limiter, cfg.Logger),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		now: time.Now,
	}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformX }

func (a *Adapter) Configured() bool {
	return a.oauth.ClientID != "" && a.oauth.ClientSecret != "" && a.oauth.RedirectURL != ""
}

func (a *Adapter) Scopes() []string { return a.oauth.Scopes }

// RefreshPolicy: two hour access tokens refreshed on demand; every
// refresh rotates the refresh token.
func (a *Adapter) RefreshPolicy() domain.RefreshPolicy {
	return domain.RefreshPolicy{
		Credential:          domain.RefreshWithRefreshToken,
		RotatesRefreshToken: true,
	}
}

func (a *Adapter) BuildAuthorizationURL(state, codeChallenge string) string {
	return a.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (a *Adapter) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*domain.OAuthTokens, error) {
	tok, err := WithRateLimit(ctx, a.limiter, func(ctx context.Context) (*oauth2.Token, error) {
		tok, err := a.oauth.Exchange(platforms.WithHTTPClient(ctx, a.httpClient), code, oauth2.VerifierOption(codeVerifier))
		if err != nil {
			return nil, asRateLimit(err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, a.tokenFailure("exchange", domain.ErrTokenExchangeFailed, err)
	}
	return platforms.TokensFromOAuth2(tok, a.now()), nil
}

func (a *Adapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	tok, err := WithRateLimit(ctx, a.limiter, func(ctx context.Context) (*oauth2.Token, error) {
		src := a.oauth.TokenSource(platforms.WithHTTPClient(ctx, a.httpClient), &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, asRateLimit(err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, a.tokenFailure("refresh", domain.ErrTokenRefreshFailed, err)
	}
	return platforms.TokensFromOAuth2(tok, a.now()), nil
}

// tokenFailure reports a token endpoint that is still rate limited after
// the retry as ErrRateLimited, so callers back off instead of reconnecting.
func (a *Adapter) tokenFailure(op string, sentinel, err error) error {
	if errors.Is(err, domain.ErrRateLimited) {
		sentinel = domain.ErrRateLimited
	}
	return platforms.Fail(a.logger, domain.PlatformX, op, sentinel, err)
}

func (a *Adapter) GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	info, err := a.Me(ctx, accessToken)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformX, "user info", domain.ErrUserInfoFailed, err)
	}
	return info, nil
}
