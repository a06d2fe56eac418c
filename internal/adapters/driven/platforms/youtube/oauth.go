// Package youtube implements the YouTube (Google) OAuth adapter.
package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// DefaultUserInfoURL is the Google account profile endpoint used when
// the account has no channel.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{
	ytapi.YoutubeReadonlyScope,
	ytapi.YoutubeForceSslScope,
	"https://www.googleapis.com/auth/yt-analytics.readonly",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Config holds adapter settings. Endpoint fields are optional overrides.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger

	Endpoint    oauth2.Endpoint
	APIEndpoint string
	UserInfoURL string
}

// Ensure Adapter implements the interface.
var _ driven.PlatformAdapter = (*Adapter)(nil)

// Adapter talks to Google OAuth and the YouTube Data API.
type Adapter struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	logger      *slog.Logger
	apiEndpoint string
	userInfoURL string
	now         func() time.Time
}

// New creates a YouTube adapter.
func New(cfg Config) *Adapter {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient:  platforms.DefaultClient(cfg.HTTPClient),
		logger:      logger.With("platform", string(domain.PlatformYouTube)),
		apiEndpoint: cfg.APIEndpoint,
		userInfoURL: userInfoURL,
		now:         time.Now,
	}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformYouTube }

func (a *Adapter) Configured() bool {
	return a.oauth.ClientID != "" && a.oauth.ClientSecret != "" && a.oauth.RedirectURL != ""
}

func (a *Adapter) Scopes() []string { return a.oauth.Scopes }

// RefreshPolicy: Google access tokens live an hour and are refreshed
// lazily. The refresh token is not reissued.
func (a *Adapter) RefreshPolicy() domain.RefreshPolicy {
	return domain.RefreshPolicy{Credential: domain.RefreshWithRefreshToken}
}

// BuildAuthorizationURL forces offline access and the consent screen so
// Google always issues a refresh token.
func (a *Adapter) BuildAuthorizationURL(state, codeChallenge string) string {
	return a.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (a *Adapter) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*domain.OAuthTokens, error) {
	tok, err := a.oauth.Exchange(platforms.WithHTTPClient(ctx, a.httpClient), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformYouTube, "exchange", domain.ErrTokenExchangeFailed, err)
	}
	return platforms.TokensFromOAuth2(tok, a.now()), nil
}

// RefreshAccessToken returns the caller's refresh token unchanged
// unless Google sends a new one.
func (a *Adapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*domain.OAuthTokens, error) {
	src := a.oauth.TokenSource(platforms.WithHTTPClient(ctx, a.httpClient), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformYouTube, "refresh", domain.ErrTokenRefreshFailed, err)
	}

	out := platforms.TokensFromOAuth2(tok, a.now())
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// GetUserInfo resolves the user's channel, falling back to the Google
// account profile when the account has none.
func (a *Adapter) GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	info, err := a.channelInfo(ctx, accessToken)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformYouTube, "channel lookup", domain.ErrUserInfoFailed, err)
	}
	if info != nil {
		return info, nil
	}

	a.logger.Debug("no channel for account, using profile")
	info, err = a.profileInfo(ctx, accessToken)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformYouTube, "user info", domain.ErrUserInfoFailed, err)
	}
	return info, nil
}

func (a *Adapter) channelInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	ctx = platforms.WithHTTPClient(ctx, a.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(a.apiEndpoint))
	}
	svc, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	resp, err := svc.Channels.List([]string{"id", "snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	ch := resp.Items[0]
	info := &domain.PlatformUserInfo{PlatformUserID: ch.Id}
	if ch.Snippet != nil {
		info.PlatformUsername = ch.Snippet.CustomUrl
		info.DisplayName = ch.Snippet.Title
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			info.AvatarURL = ch.Snippet.Thumbnails.Default.Url
		}
	}
	return info, nil
}

func (a *Adapter) profileInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	body, err := platforms.Get(ctx, a.httpClient, a.userInfoURL, accessToken)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	id := doc.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("profile response has no id")
	}
	return &domain.PlatformUserInfo{
		PlatformUserID:   id,
		PlatformUsername: doc.Get("email").String(),
		DisplayName:      doc.Get("name").String(),
		AvatarURL:        doc.Get("picture").String(),
	}, nil
}
