package tiktok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

func newTestAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(Config{
		ClientKey:    "client-key",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback/tiktok",
		HTTPClient:   srv.Client(),
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/user",
	})
}

func TestBuildAuthorizationURL(t *testing.T) {
	a := New(Config{ClientKey: "client-key", ClientSecret: "s", RedirectURI: "https://app.example.com/cb"})

	u, err := url.Parse(a.BuildAuthorizationURL("state-1", "challenge-1"))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "www.tiktok.com", u.Host)
	assert.Equal(t, "client-key", q.Get("client_key"))
	assert.Empty(t, q.Get("client_id"))
	assert.Equal(t, "user.info.basic,user.info.profile,user.info.stats,video.list", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestRefreshPolicy(t *testing.T) {
	p := New(Config{}).RefreshPolicy()
	assert.True(t, p.Proactive())
	assert.Equal(t, RefreshInterval, p.Interval)
	assert.True(t, p.RotatesRefreshToken)
	assert.Equal(t, domain.RefreshWithRefreshToken, p.Credential)
}

func TestExchangeCodeForTokens(t *testing.T) {
	var form url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"access_token":"act.1","refresh_token":"rft.1","expires_in":86400,"open_id":"o1","scope":"user.info.basic,video.list","token_type":"Bearer"}`))
	})

	tokens, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "act.1", tokens.AccessToken)
	assert.Equal(t, "rft.1", tokens.RefreshToken)
	assert.Equal(t, 86400, tokens.ExpiresIn)
	assert.Equal(t, []string{"user.info.basic", "video.list"}, tokens.Scopes())

	assert.Equal(t, "client-key", form.Get("client_key"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-1", form.Get("code"))
	assert.Equal(t, "verifier-1", form.Get("code_verifier"))
}

func TestExchangeCodeForTokens_ErrorField(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Authorization code is expired.","log_id":"x"}`))
	})

	_, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "v")
	require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.NotContains(t, err.Error(), "expired")
}

func TestExchangeCodeForTokens_HTTPError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "v")
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
}

func TestRefreshAccessToken_RotatesRefreshToken(t *testing.T) {
	var form url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"access_token":"act.2","refresh_token":"rft.2","expires_in":86400}`))
	})

	tokens, err := a.RefreshAccessToken(context.Background(), "rft.1")
	require.NoError(t, err)

	assert.Equal(t, "act.2", tokens.AccessToken)
	assert.Equal(t, "rft.2", tokens.RefreshToken)
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "rft.1", form.Get("refresh_token"))
}

func TestRefreshAccessToken_MissingAccessToken(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := a.RefreshAccessToken(context.Background(), "rft.1")
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestGetUserInfo(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer act.1", r.Header.Get("Authorization"))
		assert.Equal(t, userInfoFields, r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"data":{"user":{"open_id":"o1","union_id":"u1","display_name":"Gopher","username":"gopher","avatar_url":"https://img"}},"error":{"code":"ok","message":""}}`))
	})

	info, err := a.GetUserInfo(context.Background(), "act.1")
	require.NoError(t, err)

	assert.Equal(t, "o1", info.PlatformUserID)
	assert.Equal(t, "gopher", info.PlatformUsername)
	assert.Equal(t, "Gopher", info.DisplayName)
	assert.Equal(t, "https://img", info.AvatarURL)
}

func TestGetUserInfo_ErrorCode(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{},"error":{"code":"access_token_invalid","message":"bad"}}`))
	})

	_, err := a.GetUserInfo(context.Background(), "act.1")
	assert.ErrorIs(t, err, domain.ErrUserInfoFailed)
}
