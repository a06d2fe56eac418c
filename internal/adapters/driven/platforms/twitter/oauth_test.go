package twitter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeX serves the token endpoint and a subset of the v2 API.
type fakeX struct {
	mu        sync.Mutex
	tokenForm url.Values
	basicUser string
	tokenResp map[string]any
	tokenCode int
	// tokenThrottled is the number of token requests answered with 429
	// before the endpoint behaves normally.
	tokenThrottled int
	routes         map[string]func(w http.ResponseWriter, r *http.Request)
	hits           map[string]int
}

func (f *fakeX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.hits == nil {
		f.hits = make(map[string]int)
	}
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	if r.URL.Path == "/oauth2/token" {
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForm = r.PostForm
		f.basicUser, _, _ = r.BasicAuth()
		throttled := f.tokenThrottled > 0
		if throttled {
			f.tokenThrottled--
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if throttled {
			w.Header().Set("x-rate-limit-reset", "1700000000")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429}`))
			return
		}
		if f.tokenCode != 0 {
			w.WriteHeader(f.tokenCode)
			_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"Value passed for the token was invalid."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.tokenResp)
		return
	}

	h, ok := f.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	h(w, r)
}

func (f *fakeX) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newTestAdapter(t *testing.T, f *fakeX) *Adapter {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	limiter := NewRateLimiter(discardLogger())
	limiter.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return New(Config{
		ClientID:     "x-client",
		ClientSecret: "x-secret",
		RedirectURI:  "https://app.example.com/callback/x",
		HTTPClient:   srv.Client(),
		Logger:       discardLogger(),
		Limiter:      limiter,
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/i/oauth2/authorize",
			TokenURL:  srv.URL + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		APIURL: srv.URL + "/2",
	})
}

func meRoute(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(`{"data":{"id":"2244994945","name":"Gopher","username":"gopher","profile_image_url":"https://pbs.example.com/a.jpg"}}`))
}

func TestBuildAuthorizationURL(t *testing.T) {
	a := New(Config{ClientID: "x-client", ClientSecret: "s", RedirectURI: "https://app.example.com/cb"})

	u, err := url.Parse(a.BuildAuthorizationURL("state-1", "challenge-1"))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "twitter.com", u.Host)
	assert.Equal(t, "/i/oauth2/authorize", u.Path)
	assert.Equal(t, "x-client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "tweet.read users.read offline.access", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestRefreshPolicy(t *testing.T) {
	p := New(Config{}).RefreshPolicy()
	assert.False(t, p.Proactive())
	assert.True(t, p.RotatesRefreshToken)
}

func TestExchangeCodeForTokens(t *testing.T) {
	f := &fakeX{tokenResp: map[string]any{
		"token_type":    "bearer",
		"expires_in":    7200,
		"access_token":  "xa1",
		"refresh_token": "xr1",
		"scope":         "tweet.read users.read offline.access",
	}}
	a := newTestAdapter(t, f)

	tokens, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "xa1", tokens.AccessToken)
	assert.Equal(t, "xr1", tokens.RefreshToken)
	assert.InDelta(t, 7200, tokens.ExpiresIn, 2)
	assert.Equal(t, []string{"tweet.read", "users.read", "offline.access"}, tokens.Scopes())

	assert.Equal(t, "x-client", f.basicUser)
	assert.Equal(t, "verifier-1", f.tokenForm.Get("code_verifier"))
	assert.Equal(t, "code-1", f.tokenForm.Get("code"))
}

func TestExchangeCodeForTokens_Failure(t *testing.T) {
	a := newTestAdapter(t, &fakeX{tokenCode: http.StatusBadRequest})

	_, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "verifier-1")
	require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.NotContains(t, err.Error(), "Value passed")
}

func TestRefreshAccessToken_Rotates(t *testing.T) {
	f := &fakeX{tokenResp: map[string]any{
		"token_type":    "bearer",
		"expires_in":    7200,
		"access_token":  "xa2",
		"refresh_token": "xr2",
	}}
	a := newTestAdapter(t, f)

	tokens, err := a.RefreshAccessToken(context.Background(), "xr1")
	require.NoError(t, err)

	assert.Equal(t, "xa2", tokens.AccessToken)
	assert.Equal(t, "xr2", tokens.RefreshToken)
	assert.Equal(t, "refresh_token", f.tokenForm.Get("grant_type"))
	assert.Equal(t, "xr1", f.tokenForm.Get("refresh_token"))
}

func TestRefreshAccessToken_Failure(t *testing.T) {
	a := newTestAdapter(t, &fakeX{tokenCode: http.StatusBadRequest})

	_, err := a.RefreshAccessToken(context.Background(), "xr1")
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestExchangeCodeForTokens_RateLimitedThenOK(t *testing.T) {
	f := &fakeX{tokenThrottled: 1, tokenResp: map[string]any{
		"token_type":    "bearer",
		"expires_in":    7200,
		"access_token":  "xa1",
		"refresh_token": "xr1",
	}}
	a := newTestAdapter(t, f)

	var waits []time.Duration
	a.limiter.OnWait = func(d time.Duration) { waits = append(waits, d) }

	tokens, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "xa1", tokens.AccessToken)
	assert.Equal(t, 2, f.hitCount("/oauth2/token"))
	assert.Len(t, waits, 1)
}

func TestRefreshAccessToken_RateLimitedThenOK(t *testing.T) {
	f := &fakeX{tokenThrottled: 1, tokenResp: map[string]any{
		"token_type":    "bearer",
		"expires_in":    7200,
		"access_token":  "xa2",
		"refresh_token": "xr2",
	}}
	a := newTestAdapter(t, f)

	tokens, err := a.RefreshAccessToken(context.Background(), "xr1")
	require.NoError(t, err)
	assert.Equal(t, "xa2", tokens.AccessToken)
	assert.Equal(t, "xr2", tokens.RefreshToken)
	assert.Equal(t, 2, f.hitCount("/oauth2/token"))
}

func TestRefreshAccessToken_RateLimitPersists(t *testing.T) {
	a := newTestAdapter(t, &fakeX{tokenThrottled: 2})

	_, err := a.RefreshAccessToken(context.Background(), "xr1")
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.NotErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestGetUserInfo(t *testing.T) {
	f := &fakeX{routes: map[string]func(http.ResponseWriter, *http.Request){
		"/2/users/me": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer xa1", r.Header.Get("Authorization"))
			assert.True(t, strings.Contains(r.URL.Query().Get("user.fields"), "profile_image_url"))
			meRoute(w, r)
		},
	}}
	a := newTestAdapter(t, f)

	info, err := a.GetUserInfo(context.Background(), "xa1")
	require.NoError(t, err)

	assert.Equal(t, "2244994945", info.PlatformUserID)
	assert.Equal(t, "gopher", info.PlatformUsername)
	assert.Equal(t, "Gopher", info.DisplayName)
	assert.Equal(t, "https://pbs.example.com/a.jpg", info.AvatarURL)
}

func TestGetUserInfo_RateLimitedThenOK(t *testing.T) {
	calls := 0
	f := &fakeX{routes: map[string]func(http.ResponseWriter, *http.Request){
		"/2/users/me": func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			meRoute(w, r)
		},
	}}
	a := newTestAdapter(t, f)

	info, err := a.GetUserInfo(context.Background(), "xa1")
	require.NoError(t, err)
	assert.Equal(t, "2244994945", info.PlatformUserID)
	assert.Equal(t, 2, f.hitCount("/2/users/me"))
}

func TestGetUserInfo_Unauthorized(t *testing.T) {
	f := &fakeX{routes: map[string]func(http.ResponseWriter, *http.Request){
		"/2/users/me": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	}}
	a := newTestAdapter(t, f)

	_, err := a.GetUserInfo(context.Background(), "xa1")
	assert.ErrorIs(t, err, domain.ErrUserInfoFailed)
	assert.Equal(t, 1, f.hitCount("/2/users/me"))
}
