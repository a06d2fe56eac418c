package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

// OAuthService manages the lifecycle of platform connections: starting
// authorization flows, completing callbacks, serving valid access tokens
// and disconnecting.
type OAuthService interface {
	// GenerateAuthorizationURL starts a flow for the user on the platform.
	// The returned state is stored for CSRF validation during callback.
	GenerateAuthorizationURL(ctx context.Context, platform domain.Platform, userID string) (*domain.AuthorizationURL, error)

	// GetOAuthState consumes a pending state. Returns nil, nil when the
	// state is unknown, expired or already used.
	GetOAuthState(ctx context.Context, state string) (*domain.OAuthStateEntry, error)

	// ExchangeCodeForTokens trades an authorization code for tokens.
	ExchangeCodeForTokens(ctx context.Context, platform domain.Platform, code, codeVerifier string) (*domain.OAuthTokens, error)

	// GetUserInfo fetches the platform identity of the token owner.
	GetUserInfo(ctx context.Context, platform domain.Platform, accessToken string) (*domain.PlatformUserInfo, error)

	// SavePlatformConnection encrypts and upserts the connection.
	SavePlatformConnection(ctx context.Context, req SaveConnectionRequest) (*domain.PlatformConnection, error)

	// ScheduleTokenRefresh registers proactive refreshes for platforms
	// that need them. It is a no-op for lazily refreshed platforms.
	ScheduleTokenRefresh(ctx context.Context, userID string, platform domain.Platform) error

	// Callback completes a flow: validates state, exchanges the code,
	// fetches the profile, persists the connection and schedules refreshes.
	Callback(ctx context.Context, req CallbackRequest) (*CallbackResponse, error)

	// GetConnection returns the active connection with decrypted tokens.
	// Returns nil, nil if there is none.
	GetConnection(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error)

	// ListConnections returns token-free summaries of active connections.
	ListConnections(ctx context.Context, userID string) ([]*domain.ConnectionSummary, error)

	// GetValidAccessToken returns a usable access token, refreshing it
	// first when expired. Returns domain.ErrNotFound without a connection
	// and domain.ErrTokenRefreshFailed when the refresh is refused.
	GetValidAccessToken(ctx context.Context, userID string, platform domain.Platform) (string, error)

	// RefreshConnection refreshes the tokens of a connection now.
	RefreshConnection(ctx context.Context, userID string, platform domain.Platform, trigger domain.RefreshTrigger) (*domain.PlatformConnection, error)

	// Disconnect deactivates the connection and cancels scheduled refreshes.
	Disconnect(ctx context.Context, userID string, platform domain.Platform) (*DisconnectResponse, error)

	// MarkSynced records that platform data was read for the connection.
	MarkSynced(ctx context.Context, userID string, platform domain.Platform) error

	// LogOAuthAttempt records a callback outcome. Failures are logged, never returned.
	LogOAuthAttempt(ctx context.Context, attempt *domain.OAuthAttempt)
}

// SaveConnectionRequest carries everything needed to persist a connection.
type SaveConnectionRequest struct {
	UserID        string
	Platform      domain.Platform
	Tokens        *domain.OAuthTokens
	UserInfo      *domain.PlatformUserInfo
	ScopesGranted []string
}

// CallbackRequest represents the OAuth callback from the platform.
// @Description OAuth callback parameters from platform redirect
type CallbackRequest struct {
	// Platform is taken from the callback path.
	Platform domain.Platform `json:"platform" example:"youtube"`

	// Code is the authorization code from the platform.
	Code string `json:"code" example:"abc123"`

	// State is the CSRF token returned by the platform.
	State string `json:"state" example:"abc123xyz"`

	// Error is set if the platform returned an error.
	Error string `json:"error,omitempty" example:"access_denied"`

	// ErrorDescription provides details about the error.
	ErrorDescription string `json:"error_description,omitempty" example:"The user denied access"`

	// IPAddress is the caller address, recorded in the audit log.
	IPAddress string `json:"-"`
}

// CallbackResponse contains the result of the OAuth callback.
// @Description Response after successful OAuth authorization
type CallbackResponse struct {
	// Connection is the saved connection summary.
	Connection *domain.ConnectionSummary `json:"connection"`

	// Message provides a human-readable status message.
	Message string `json:"message" example:"Connected YouTube account gopher"`
}

// DisconnectResponse is returned after a connection is deactivated.
type DisconnectResponse struct {
	Success        bool      `json:"success"`
	Platform       string    `json:"platform"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// OAuthError represents an OAuth-specific error. It unwraps to the
// domain error it stands for so callers can branch with errors.Is.
type OAuthError struct {
	Code        string `json:"error" example:"invalid_state"`
	Description string `json:"error_description" example:"The state parameter is invalid or expired"`
	Err         error  `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

func (e *OAuthError) Unwrap() error {
	return e.Err
}

// Common OAuth errors
var (
	ErrOAuthInvalidState      = &OAuthError{Code: "invalid_state", Description: "The state parameter is invalid or expired", Err: domain.ErrInvalidState}
	ErrOAuthMissingParams     = &OAuthError{Code: "invalid_request", Description: "The code or state parameter is missing", Err: domain.ErrMissingCodeOrState}
	ErrOAuthNotConfigured     = &OAuthError{Code: "platform_not_configured", Description: "The platform is not configured", Err: domain.ErrPlatformNotConfigured}
	ErrOAuthExchangeFailed    = &OAuthError{Code: "exchange_failed", Description: "Failed to exchange authorization code for tokens", Err: domain.ErrTokenExchangeFailed}
	ErrOAuthUserInfoFailed    = &OAuthError{Code: "user_info_failed", Description: "Failed to fetch user information", Err: domain.ErrUserInfoFailed}
	ErrOAuthPersistenceFailed = &OAuthError{Code: "server_error", Description: "Failed to save the connection", Err: domain.ErrServiceUnavailable}
)

// NewAccessDeniedError wraps the error reported by the platform redirect.
func NewAccessDeniedError(code, description string) *OAuthError {
	if code == "" {
		code = "access_denied"
	}
	return &OAuthError{Code: code, Description: description, Err: domain.ErrAccessDenied}
}
