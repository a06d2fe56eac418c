package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// DefaultAPIURL is the X API v2 base.
const DefaultAPIURL = "https://api.twitter.com/2"

// Client is a per-call bearer client for the X API v2. Every request is
// wrapped in WithRateLimit.
type Client struct {
	apiURL     string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewClient creates a client. Empty apiURL means DefaultAPIURL.
func NewClient(apiURL string, httpClient *http.Client, limiter *RateLimiter, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = NewRateLimiter(logger)
	}
	return &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		httpClient: platforms.DefaultClient(httpClient),
		limiter:    limiter,
		logger:     logger.With("platform", string(domain.PlatformX)),
	}
}

// get performs a rate limited GET and returns the parsed body.
func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values) (gjson.Result, error) {
	endpoint := c.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return WithRateLimit(ctx, c.limiter, func(ctx context.Context) (gjson.Result, error) {
		body, err := platforms.Get(ctx, c.httpClient, endpoint, accessToken)
		if err != nil {
			return gjson.Result{}, asRateLimit(err)
		}
		return gjson.ParseBytes(body), nil
	})
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context, accessToken string) (*domain.PlatformUserInfo, error) {
	doc, err := c.get(ctx, accessToken, "/users/me", url.Values{"user.fields": {"profile_image_url"}})
	if err != nil {
		return nil, err
	}

	user := doc.Get("data")
	id := user.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("users/me response has no id")
	}
	return &domain.PlatformUserInfo{
		PlatformUserID:   id,
		PlatformUsername: user.Get("username").String(),
		DisplayName:      user.Get("name").String(),
		AvatarURL:        user.Get("profile_image_url").String(),
	}, nil
}
