// Package tiktok implements the TikTok Login Kit OAuth adapter.
package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

const (
	DefaultAuthURL     = "https://www.tiktok.com/v2/auth/authorize/"
	DefaultTokenURL    = "https://open.tiktokapis.com/v2/oauth/token/"
	DefaultUserInfoURL = "https://open.tiktokapis.com/v2/user/info/"

	userInfoFields = "open_id,union_id,avatar_url,display_name,username"

	// RefreshInterval keeps ahead of the 24 hour access token lifetime.
	RefreshInterval = 22 * time.Hour
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{"user.info.basic", "user.info.profile", "user.info.stats", "video.list"}

// Config holds adapter settings. URL fields are optional overrides.
type Config struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Ensure Adapter implements the interface.
var _ driven.PlatformAdapter = (*Adapter)(nil)

// Adapter talks to the TikTok v2 OAuth and user APIs.
type Adapter struct {
	clientKey    string
	clientSecret string
	redirectURI  string
	scopes       []string
	httpClient   *http.Client
	logger       *slog.Logger

	authURL     string
	tokenURL    string
	userInfoURL string
}

// New creates a TikTok adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		clientKey:    cfg.ClientKey,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes:       cfg.Scopes,
		httpClient:   platforms.DefaultClient(cfg.HTTPClient),
		logger:       cfg.Logger,
		authURL:      cfg.AuthURL,
		tokenURL:     cfg.TokenURL,
		userInfoURL:  cfg.UserInfoURL,
	}
	if len(a.scopes) == 0 {
		a.scopes = DefaultScopes
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("platform", string(domain.PlatformTikTok))
	if a.authURL == "" {
		a.authURL = DefaultAuthURL
	}
	if a.tokenURL == "" {
		a.tokenURL = DefaultTokenURL
	}
	if a.userInfoURL == "" {
		a.userInfoURL = DefaultUserInfoURL
	}
	return a
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformTikTok }

func (a *Adapter) Configured() bool {
	return a.clientKey != "" && a.clientSecret != "" && a.redirectURI != ""
}

func (a *Adapter) Scopes() []string { return a.scopes }

// RefreshPolicy: tokens last 24 hours and every refresh rotates the
// refresh token.
func (a *Adapter) RefreshPolicy() domain.RefreshPolicy {
	return domain.RefreshPolicy{
		Interval:            RefreshInterval,
		Credential:          domain.RefreshWithRefreshToken,
		RotatesRefreshToken: true,
	}
}

// BuildAuthorizationURL uses client_key and comma separated scopes.
func (a *Adapter) BuildAuthorizationURL(state, codeChallenge string) string {
	params := url.Values{}
	params.Set("client_key", a.clientKey)
	params.Set("scope", strings.Join(a.scopes, ","))
	params.Set("response_type", "code")
	params.Set("redirect_uri", a.redirectURI)
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	return a.authURL + "?" + params.Encode()
}

func (a *Adapter) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*domain.OAuthTokens, error) {
	form := url.Values{}
	form.Set("client_key", a.clientKey)
	form.Set("client_secret", a.clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", a.redirectURI)
	form.Set("code_verifier", codeVerifier)

	tokens, err := a.tokenRequest(ctx, form)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformTikTok, "exchange", domain.ErrTokenExchangeFailed, err)
	}
	return tokens, nil
}

// RefreshAccessToken returns the rotated refresh token issued by TikTok.
func (a *Adapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	form := url.Values{}
	form.Set("client_key", a.clientKey)
	form.Set("client_secret", a.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	tokens, err := a.tokenRequest(ctx, form)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformTikTok, "refresh", domain.ErrTokenRefreshFailed, err)
	}
	return tokens, nil
}

func (a *Adapter) tokenRequest(ctx context.Context, form url.Values) (*domain.OAuthTokens, error) {
	body, err := platforms.PostForm(ctx, a.httpClient, a.tokenURL, form)
	if err != nil {
		return nil, err
	}

	// TikTok reports some failures with a 200 and an error field.
	doc := gjson.ParseBytes(body)
	if e := doc.Get("error").String(); e != "" {
		return nil, fmt.Errorf("token endpoint error %q", e)
	}

	accessToken := doc.Get("access_token").String()
	if accessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	return &domain.OAuthTokens{
		AccessToken:  accessToken,
		RefreshToken: doc.Get("refresh_token").String(),
		ExpiresIn:    int(doc.Get("expires_in").Int()),
		TokenType:    doc.Get("token_type").String(),
		Scope:        doc.Get("scope").String(),
	}, nil
}

func (a *Adapter) GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	body, err := platforms.Get(ctx, a.httpClient, a.userInfoURL+"?fields="+userInfoFields, accessToken)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformTikTok, "user info", domain.ErrUserInfoFailed, err)
	}

	doc := gjson.ParseBytes(body)
	if code := doc.Get("error.code").String(); code != "" && code != "ok" {
		return nil, platforms.Fail(a.logger, domain.PlatformTikTok, "user info", domain.ErrUserInfoFailed,
			fmt.Errorf("user info error %q", code))
	}

	user := doc.Get("data.user")
	openID := user.Get("open_id").String()
	if openID == "" {
		return nil, platforms.Fail(a.logger, domain.PlatformTikTok, "user info", domain.ErrUserInfoFailed,
			fmt.Errorf("user info has no open_id"))
	}

	return &domain.PlatformUserInfo{
		PlatformUserID:   openID,
		PlatformUsername: user.Get("username").String(),
		DisplayName:      user.Get("display_name").String(),
		AvatarURL:        user.Get("avatar_url").String(),
	}, nil
}
