package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

type fakeInstagram struct {
	mu       sync.Mutex
	exchange string
	graph    map[string]string
	queries  map[string]url.Values
	forms    []url.Values
}

func (f *fakeInstagram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/oauth/access_token" {
		_ = r.ParseForm()
		f.forms = append(f.forms, r.PostForm)
		_, _ = w.Write([]byte(f.exchange))
		return
	}

	if f.queries == nil {
		f.queries = make(map[string]url.Values)
	}
	f.queries[r.URL.Path] = r.URL.Query()

	body, ok := f.graph[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
		return
	}
	_, _ = w.Write([]byte(body))
}

func newTestAdapter(t *testing.T, f *fakeInstagram) *Adapter {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return New(Config{
		ClientID:     "ig-app",
		ClientSecret: "ig-secret",
		RedirectURI:  "https://app.example.com/callback/instagram",
		HTTPClient:   srv.Client(),
		TokenURL:     srv.URL + "/oauth/access_token",
		GraphURL:     srv.URL,
	})
}

func TestBuildAuthorizationURL(t *testing.T) {
	a := New(Config{ClientID: "ig-app", ClientSecret: "s", RedirectURI: "https://app.example.com/cb"})

	u, err := url.Parse(a.BuildAuthorizationURL("state-1", "challenge-1"))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "www.instagram.com", u.Host)
	assert.Equal(t, "ig-app", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "instagram_business_basic,instagram_business_manage_comments,instagram_business_manage_insights", q.Get("scope"))
	assert.False(t, q.Has("code_challenge"))
}

func TestRefreshPolicy(t *testing.T) {
	p := New(Config{}).RefreshPolicy()
	assert.Equal(t, RefreshInterval, p.Interval)
	assert.Equal(t, domain.RefreshWithAccessToken, p.Credential)
	assert.False(t, p.RotatesRefreshToken)
}

func TestExchangeCodeForTokens_TwoStep(t *testing.T) {
	f := &fakeInstagram{
		exchange: `{"access_token":"S1","user_id":17841400,"permissions":"instagram_business_basic,instagram_business_manage_comments"}`,
		graph: map[string]string{
			"/access_token": `{"access_token":"L1","token_type":"bearer","expires_in":5183944}`,
		},
	}
	a := newTestAdapter(t, f)

	tokens, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "ignored")
	require.NoError(t, err)

	assert.Equal(t, "L1", tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
	assert.Equal(t, 5183944, tokens.ExpiresIn)
	assert.Equal(t, "instagram_business_basic,instagram_business_manage_comments", tokens.Scope)

	require.Len(t, f.forms, 1)
	assert.Equal(t, "authorization_code", f.forms[0].Get("grant_type"))
	assert.Equal(t, "code-1", f.forms[0].Get("code"))

	q := f.queries["/access_token"]
	assert.Equal(t, "ig_exchange_token", q.Get("grant_type"))
	assert.Equal(t, "ig-secret", q.Get("client_secret"))
	assert.Equal(t, "S1", q.Get("access_token"))
}

func TestExchangeCodeForTokens_DataEnvelope(t *testing.T) {
	f := &fakeInstagram{
		exchange: `{"data":[{"access_token":"S2","user_id":"1","permissions":["instagram_business_basic","instagram_business_manage_insights"]}]}`,
		graph: map[string]string{
			"/access_token": `{"access_token":"L2","token_type":"bearer","expires_in":5184000}`,
		},
	}
	a := newTestAdapter(t, f)

	tokens, err := a.ExchangeCodeForTokens(context.Background(), "code-2", "")
	require.NoError(t, err)

	assert.Equal(t, "L2", tokens.AccessToken)
	assert.Equal(t, "instagram_business_basic,instagram_business_manage_insights", tokens.Scope)
	assert.Equal(t, "S2", f.queries["/access_token"].Get("access_token"))
}

func TestExchangeCodeForTokens_LongLivedFailure(t *testing.T) {
	f := &fakeInstagram{exchange: `{"access_token":"S1","user_id":1}`}
	a := newTestAdapter(t, f)

	_, err := a.ExchangeCodeForTokens(context.Background(), "code-1", "")
	require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.NotContains(t, err.Error(), "S1")
}

func TestRefreshAccessToken_UsesAccessToken(t *testing.T) {
	f := &fakeInstagram{graph: map[string]string{
		"/refresh_access_token": `{"access_token":"L2","token_type":"bearer","expires_in":5184000}`,
	}}
	a := newTestAdapter(t, f)

	tokens, err := a.RefreshAccessToken(context.Background(), "L1")
	require.NoError(t, err)

	assert.Equal(t, "L2", tokens.AccessToken)
	assert.Equal(t, 5184000, tokens.ExpiresIn)

	q := f.queries["/refresh_access_token"]
	assert.Equal(t, "ig_refresh_token", q.Get("grant_type"))
	assert.Equal(t, "L1", q.Get("access_token"))
}

func TestRefreshAccessToken_FailureHidesToken(t *testing.T) {
	a := newTestAdapter(t, &fakeInstagram{})

	_, err := a.RefreshAccessToken(context.Background(), "L1-secret")
	require.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	assert.NotContains(t, err.Error(), "L1-secret")
}

func TestGetUserInfo(t *testing.T) {
	f := &fakeInstagram{graph: map[string]string{
		"/" + graphVersion + "/me": `{"user_id":"17841400","username":"gopher","name":"Gopher"}`,
	}}
	a := newTestAdapter(t, f)

	info, err := a.GetUserInfo(context.Background(), "L1")
	require.NoError(t, err)

	assert.Equal(t, "17841400", info.PlatformUserID)
	assert.Equal(t, "gopher", info.PlatformUsername)
	assert.Equal(t, "Gopher", info.DisplayName)
	assert.Equal(t, "L1", f.queries["/"+graphVersion+"/me"].Get("access_token"))
}

func TestGetUserInfo_Failure(t *testing.T) {
	a := newTestAdapter(t, &fakeInstagram{})

	_, err := a.GetUserInfo(context.Background(), "L1")
	assert.ErrorIs(t, err, domain.ErrUserInfoFailed)
}
