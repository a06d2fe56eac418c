package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driving"
)

// Mock services for testing

type mockAuthService struct {
	validateTokenFn func(ctx context.Context, token string) (*domain.AuthContext, error)
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	if token == "valid-token" {
		return &domain.AuthContext{UserID: "user-1", Email: "test@example.com"}, nil
	}
	return nil, domain.ErrTokenInvalid
}

func (m *mockAuthService) IssueToken(ctx context.Context, userID, email string, ttl time.Duration) (string, error) {
	return "valid-token", nil
}

type mockOAuthService struct {
	driving.OAuthService

	authorizeFn  func(ctx context.Context, platform domain.Platform, userID string) (*domain.AuthorizationURL, error)
	callbackFn   func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error)
	getFn        func(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error)
	listFn       func(ctx context.Context, userID string) ([]*domain.ConnectionSummary, error)
	disconnectFn func(ctx context.Context, userID string, platform domain.Platform) (*driving.DisconnectResponse, error)

	lastCallback driving.CallbackRequest
}

func (m *mockOAuthService) GenerateAuthorizationURL(ctx context.Context, platform domain.Platform, userID string) (*domain.AuthorizationURL, error) {
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx, platform, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOAuthService) Callback(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
	m.lastCallback = req
	if m.callbackFn != nil {
		return m.callbackFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOAuthService) GetConnection(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, platform)
	}
	return nil, nil
}

func (m *mockOAuthService) ListConnections(ctx context.Context, userID string) ([]*domain.ConnectionSummary, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOAuthService) Disconnect(ctx context.Context, userID string, platform domain.Platform) (*driving.DisconnectResponse, error) {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID, platform)
	}
	return nil, domain.ErrNotFound
}

type mockActivityService struct {
	getFn func(ctx context.Context, userID string, platform domain.Platform, max int) (*domain.Activity, error)
}

func (m *mockActivityService) GetActivity(ctx context.Context, userID string, platform domain.Platform, max int) (*domain.Activity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, platform, max)
	}
	return nil, errors.New("not implemented")
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

func newTestServer(oauth *mockOAuthService, activity *mockActivityService, pingers map[string]Pinger) *Server {
	if oauth == nil {
		oauth = &mockOAuthService{}
	}
	if activity == nil {
		activity = &mockActivityService{}
	}
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.FrontendURL = "https://app.example.com/settings"
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, Services{Auth: &mockAuthService{}, OAuth: oauth, Activity: activity}, pingers)
}

func do(t *testing.T, s *Server, method, target string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer valid-token")
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func redirectParams(t *testing.T, rr *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusFound, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "/settings", loc.Path)
	return loc.Query()
}

func TestHealthHandler(t *testing.T) {
	rr := do(t, newTestServer(nil, nil, nil), "GET", "/health", false)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestReadyHandler(t *testing.T) {
	s := newTestServer(nil, nil, map[string]Pinger{"database": mockPinger{}, "redis": nil})
	rr := do(t, s, "GET", "/ready", false)
	assert.Equal(t, http.StatusOK, rr.Code)

	s = newTestServer(nil, nil, map[string]Pinger{"database": mockPinger{err: errors.New("refused")}})
	rr = do(t, s, "GET", "/ready", false)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]string](t, rr)
	assert.Equal(t, "database", body["component"])
	assert.NotContains(t, rr.Body.String(), "refused")
}

func TestVersionHandler(t *testing.T) {
	rr := do(t, newTestServer(nil, nil, nil), "GET", "/version", false)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1.2.3", decode[map[string]string](t, rr)["version"])
}

func TestMetricsHandler(t *testing.T) {
	rr := do(t, newTestServer(nil, nil, nil), "GET", "/metrics", false)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthorizeHandler(t *testing.T) {
	expires := time.Date(2026, 10, 1, 12, 10, 0, 0, time.UTC)
	oauth := &mockOAuthService{
		authorizeFn: func(ctx context.Context, platform domain.Platform, userID string) (*domain.AuthorizationURL, error) {
			assert.Equal(t, domain.PlatformX, platform)
			assert.Equal(t, "user-1", userID)
			return &domain.AuthorizationURL{URL: "https://twitter.com/i/oauth2/authorize?state=s1", State: "s1", ExpiresAt: expires}, nil
		},
	}
	s := newTestServer(oauth, nil, nil)

	rr := do(t, s, "POST", "/api/v1/platforms/twitter/authorize", true)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[map[string]any](t, rr)
	assert.Equal(t, "https://twitter.com/i/oauth2/authorize?state=s1", body["authorization_url"])
	assert.Equal(t, "s1", body["state"])
	assert.Equal(t, "2026-10-01T12:10:00Z", body["expires_at"])
}

func TestAuthorizeHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"unknown platform", "/api/v1/platforms/myspace/authorize", nil, http.StatusBadRequest},
		{"not configured", "/api/v1/platforms/tiktok/authorize", driving.ErrOAuthNotConfigured, http.StatusServiceUnavailable},
		{"store down", "/api/v1/platforms/tiktok/authorize", fmt.Errorf("store oauth state: %w", domain.ErrServiceUnavailable), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oauth := &mockOAuthService{
				authorizeFn: func(context.Context, domain.Platform, string) (*domain.AuthorizationURL, error) {
					return nil, tt.err
				},
			}
			rr := do(t, newTestServer(oauth, nil, nil), "POST", tt.path, true)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestAuthorizeHandler_RequiresAuth(t *testing.T) {
	rr := do(t, newTestServer(nil, nil, nil), "POST", "/api/v1/platforms/youtube/authorize", false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCallbackHandler_Success(t *testing.T) {
	oauth := &mockOAuthService{
		callbackFn: func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
			return &driving.CallbackResponse{Message: "Connected YouTube account gopher"}, nil
		},
	}
	s := newTestServer(oauth, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/platforms/youtube/callback?code=c1&state=s1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	params := redirectParams(t, rr)
	assert.Equal(t, "youtube", params.Get("platform"))
	assert.Equal(t, "success", params.Get("status"))
	assert.Equal(t, "Connected YouTube account gopher", params.Get("message"))

	assert.Equal(t, domain.PlatformYouTube, oauth.lastCallback.Platform)
	assert.Equal(t, "c1", oauth.lastCallback.Code)
	assert.Equal(t, "s1", oauth.lastCallback.State)
	// httptest peers are untrusted, so the forwarded header is ignored.
	assert.Equal(t, "192.0.2.1", oauth.lastCallback.IPAddress)
}

func TestCallbackHandler_Failures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  string
		wantMessage string
	}{
		{"denied", driving.NewAccessDeniedError("access_denied", "user said no"), "denied", "Authorization was denied"},
		{"invalid state", driving.ErrOAuthInvalidState, "error", "The state parameter is invalid or expired"},
		{"exchange", driving.ErrOAuthExchangeFailed, "error", "Failed to exchange authorization code for tokens"},
		{"unexpected", errors.New("pq: connection refused"), "error", "Something went wrong connecting the account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oauth := &mockOAuthService{
				callbackFn: func(context.Context, driving.CallbackRequest) (*driving.CallbackResponse, error) {
					return nil, tt.err
				},
			}
			rr := do(t, newTestServer(oauth, nil, nil), "GET", "/api/v1/platforms/tiktok/callback?error=access_denied&state=s1", false)

			params := redirectParams(t, rr)
			assert.Equal(t, "tiktok", params.Get("platform"))
			assert.Equal(t, tt.wantStatus, params.Get("status"))
			assert.Equal(t, tt.wantMessage, params.Get("message"))
		})
	}
}

func TestCallbackHandler_UnknownPlatform(t *testing.T) {
	oauth := &mockOAuthService{}
	rr := do(t, newTestServer(oauth, nil, nil), "GET", "/api/v1/platforms/myspace/callback?code=c&state=s", false)

	params := redirectParams(t, rr)
	assert.Equal(t, "error", params.Get("status"))
	assert.Empty(t, oauth.lastCallback.Code, "service is not called")
}

func TestGetConnectionHandler(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	oauth := &mockOAuthService{
		getFn: func(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
			if platform != domain.PlatformInstagram {
				return nil, nil
			}
			return &domain.PlatformConnection{
				UserID:         userID,
				Platform:       platform,
				AccessToken:    "secret-access",
				RefreshToken:   "secret-refresh",
				PlatformUserID: "ig-1",
				TokenExpiresAt: &expires,
				IsActive:       true,
			}, nil
		},
	}
	s := newTestServer(oauth, nil, nil)

	rr := do(t, s, "GET", "/api/v1/platforms/instagram/connection", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")

	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ig-1", body["platform_user_id"])
	assert.Equal(t, false, body["token_expired"])

	rr = do(t, s, "GET", "/api/v1/platforms/youtube/connection", true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListConnectionsHandler(t *testing.T) {
	oauth := &mockOAuthService{
		listFn: func(ctx context.Context, userID string) ([]*domain.ConnectionSummary, error) {
			return []*domain.ConnectionSummary{
				{Platform: domain.PlatformTikTok, PlatformUserID: "tt-1", IsActive: true},
				{Platform: domain.PlatformX, PlatformUserID: "x-1", IsActive: true},
			}, nil
		},
	}

	rr := do(t, newTestServer(oauth, nil, nil), "GET", "/api/v1/connections", true)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[[]map[string]any](t, rr)
	require.Len(t, body, 2)
	assert.Equal(t, "tiktok", body[0]["platform"])
}

func TestDisconnectHandler(t *testing.T) {
	oauth := &mockOAuthService{
		disconnectFn: func(ctx context.Context, userID string, platform domain.Platform) (*driving.DisconnectResponse, error) {
			if platform == domain.PlatformTikTok {
				return &driving.DisconnectResponse{Success: true, Platform: "tiktok"}, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	s := newTestServer(oauth, nil, nil)

	rr := do(t, s, "DELETE", "/api/v1/platforms/tiktok/connection", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode[map[string]any](t, rr)["success"])

	rr = do(t, s, "DELETE", "/api/v1/platforms/x/connection", true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestXActivityHandler(t *testing.T) {
	var gotMax int
	activity := &mockActivityService{
		getFn: func(ctx context.Context, userID string, platform domain.Platform, max int) (*domain.Activity, error) {
			gotMax = max
			assert.Equal(t, domain.PlatformX, platform)
			return &domain.Activity{Platform: platform, Posts: []domain.Post{{ID: "1", Text: "hello"}}}, nil
		},
	}
	s := newTestServer(nil, activity, nil)

	rr := do(t, s, "GET", "/api/v1/platforms/x/activity", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, defaultActivityMax, gotMax)
	assert.Contains(t, rr.Body.String(), "hello")

	rr = do(t, s, "GET", "/api/v1/platforms/x/activity?max=50", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 50, gotMax)

	rr = do(t, s, "GET", "/api/v1/platforms/x/activity?max=abc", true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestXActivityHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", fmt.Errorf("x tweets: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{"not connected", domain.ErrNotFound, http.StatusNotFound},
		{"refresh refused", fmt.Errorf("%w: x refresh", domain.ErrTokenRefreshFailed), http.StatusConflict},
		{"upstream failure", fmt.Errorf("x mentions: %w", domain.ErrActivityFailed), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity := &mockActivityService{
				getFn: func(context.Context, string, domain.Platform, int) (*domain.Activity, error) {
					return nil, tt.err
				},
			}
			rr := do(t, newTestServer(nil, activity, nil), "GET", "/api/v1/platforms/x/activity", true)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusBadRequest, "bad")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "bad", decode[map[string]string](t, rr)["error"])
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		trusted   bool
		remote    string
		forwarded string
		want      string
	}{
		{"no proxies configured", false, "198.51.100.7:5123", "", "198.51.100.7"},
		{"spoofed header from untrusted peer", false, "198.51.100.7:5123", "203.0.113.1", "198.51.100.7"},
		{"trusted peer forwards client", true, "192.0.2.1:443", "203.0.113.1", "203.0.113.1"},
		{"trusted chain skipped from the right", true, "192.0.2.1:443", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"client cannot prepend a fake hop", true, "192.0.2.1:443", "1.2.3.4, 203.0.113.9", "203.0.113.9"},
		{"trusted peer without header", true, "10.1.2.3:80", "", "10.1.2.3"},
		{"untrusted peer in trusted config", true, "198.51.100.7:5123", "203.0.113.1", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{}
			if tt.trusted {
				s.trusted = trusted
			}
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, s.clientIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "192.0.2.1", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "192.0.2.1/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}
