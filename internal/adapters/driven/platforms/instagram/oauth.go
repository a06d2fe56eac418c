// Package instagram implements the Instagram Business Login adapter.
//
// Instagram does not issue refresh tokens. The one-hour token from the
// code exchange is swapped for a 60 day token, which is later extended
// by presenting the access token itself.
package instagram

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
	DefaultAuthURL  = "https://www.instagram.com/oauth/authorize"
	DefaultTokenURL = "https://api.instagram.com/oauth/access_token"
	DefaultGraphURL = "https://graph.instagram.com"

	graphVersion = "v21.0"

	// RefreshInterval keeps ahead of the 60 day long-lived token lifetime.
	RefreshInterval = 50 * 24 * time.Hour
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{
	"instagram_business_basic",
	"instagram_business_manage_comments",
	"instagram_business_manage_insights",
}

// Config holds adapter settings. URL fields are optional overrides.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *slog.Logger

	AuthURL  string
	TokenURL string
	GraphURL string
}

// Ensure Adapter implements the interface.
var _ driven.PlatformAdapter = (*Adapter)(nil)

// Adapter talks to the Instagram OAuth and Graph APIs.
type Adapter struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	httpClient   *http.Client
	logger       *slog.Logger

	authURL  string
	tokenURL string
	graphURL string
}

// New creates an Instagram adapter.
func New(cfg Config) *Adapter {
	a := &Adapter{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes:       cfg.Scopes,
		httpClient:   platforms.DefaultClient(cfg.HTTPClient),
		logger:       cfg.Logger,
		authURL:      cfg.AuthURL,
		tokenURL:     cfg.TokenURL,
		graphURL:     strings.TrimSuffix(cfg.GraphURL, "/"),
	}
	if len(a.scopes) == 0 {
		a.scopes = DefaultScopes
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("platform", string(domain.PlatformInstagram))
	if a.authURL == "" {
		a.authURL = DefaultAuthURL
	}
	if a.tokenURL == "" {
		a.tokenURL = DefaultTokenURL
	}
	if a.graphURL == "" {
		a.graphURL = DefaultGraphURL
	}
	return a
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformInstagram }

func (a *Adapter) Configured() bool {
	return a.clientID != "" && a.clientSecret != "" && a.redirectURI != ""
}

func (a *Adapter) Scopes() []string { return a.scopes }

func (a *Adapter) RefreshPolicy() domain.RefreshPolicy {
	return domain.RefreshPolicy{
		Interval:   RefreshInterval,
		Credential: domain.RefreshWithAccessToken,
	}
}

// BuildAuthorizationURL ignores the code challenge; Instagram has no PKCE.
func (a *Adapter) BuildAuthorizationURL(state, _ string) string {
	params := url.Values{}
	params.Set("client_id", a.clientID)
	params.Set("redirect_uri", a.redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(a.scopes, ","))
	params.Set("state", state)
	return a.authURL + "?" + params.Encode()
}

// ExchangeCodeForTokens performs both exchange steps and returns the
// long-lived token.
func (a *Adapter) ExchangeCodeForTokens(ctx context.Context, code, _ string) (*domain.OAuthTokens, error) {
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", a.redirectURI)
	form.Set("code", code)

	body, err := platforms.PostForm(ctx, a.httpClient, a.tokenURL, form)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "exchange", domain.ErrTokenExchangeFailed, err)
	}

	// The response is either flat or wrapped in a one element data array.
	doc := gjson.ParseBytes(body)
	if d := doc.Get("data.0"); d.Exists() {
		doc = d
	}
	shortLived := doc.Get("access_token").String()
	if shortLived == "" {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "exchange", domain.ErrTokenExchangeFailed,
			fmt.Errorf("token response has no access_token"))
	}
	scope := permissions(doc.Get("permissions"))

	params := url.Values{}
	params.Set("grant_type", "ig_exchange_token")
	params.Set("client_secret", a.clientSecret)
	params.Set("access_token", shortLived)

	tokens, err := a.graphToken(ctx, "/access_token", params)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "long-lived exchange", domain.ErrTokenExchangeFailed, err)
	}
	tokens.Scope = scope
	return tokens, nil
}

// RefreshAccessToken extends a long-lived access token.
func (a *Adapter) RefreshAccessToken(ctx context.Context, accessToken string) (*domain.OAuthTokens, error) {
	params := url.Values{}
	params.Set("grant_type", "ig_refresh_token")
	params.Set("access_token", accessToken)

	tokens, err := a.graphToken(ctx, "/refresh_access_token", params)
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "refresh", domain.ErrTokenRefreshFailed, err)
	}
	return tokens, nil
}

func (a *Adapter) graphToken(ctx context.Context, path string, params url.Values) (*domain.OAuthTokens, error) {
	body, err := platforms.Get(ctx, a.httpClient, a.graphURL+path+"?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	accessToken := doc.Get("access_token").String()
	if accessToken == "" {
		return nil, fmt.Errorf("graph token response has no access_token")
	}
	return &domain.OAuthTokens{
		AccessToken: accessToken,
		ExpiresIn:   int(doc.Get("expires_in").Int()),
		TokenType:   doc.Get("token_type").String(),
	}, nil
}

func (a *Adapter) GetUserInfo(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	params := url.Values{}
	params.Set("fields", "user_id,username,name,profile_picture_url")
	params.Set("access_token", accessToken)

	body, err := platforms.Get(ctx, a.httpClient, a.graphURL+"/"+graphVersion+"/me?"+params.Encode(), "")
	if err != nil {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "user info", domain.ErrUserInfoFailed, err)
	}

	doc := gjson.ParseBytes(body)
	id := doc.Get("user_id").String()
	if id == "" {
		id = doc.Get("id").String()
	}
	if id == "" {
		return nil, platforms.Fail(a.logger, domain.PlatformInstagram, "user info", domain.ErrUserInfoFailed,
			fmt.Errorf("profile has no user_id"))
	}

	return &domain.PlatformUserInfo{
		PlatformUserID:   id,
		PlatformUsername: doc.Get("username").String(),
		DisplayName:      doc.Get("name").String(),
		AvatarURL:        doc.Get("profile_picture_url").String(),
	}, nil
}

// permissions accepts both the array and the comma separated form.
func permissions(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var out []string
	for _, p := range v.Array() {
		out = append(out, p.String())
	}
	return strings.Join(out, ",")
}
