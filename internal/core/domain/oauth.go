package domain

import (
	"strings"
	"time"
)

// OAuthTokens is the normalized token response of any platform.
type OAuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ExpiresAt converts ExpiresIn into an absolute time.
// Returns nil when the platform did not report a lifetime.
func (t *OAuthTokens) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}

// Scopes splits the granted scope string. Platforms disagree on whether
// scopes are space or comma separated, so both are accepted.
func (t *OAuthTokens) Scopes() []string {
	return strings.FieldsFunc(t.Scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// PlatformUserInfo identifies the account on the platform side.
type PlatformUserInfo struct {
	PlatformUserID   string `json:"platform_user_id"`
	PlatformUsername string `json:"platform_username,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
}

// OAuthStateEntry is the temporary record tying an authorization attempt
// to the user and PKCE verifier that started it.
type OAuthStateEntry struct {
	State        string    `json:"state"`
	UserID       string    `json:"user_id"`
	Platform     Platform  `json:"platform"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired reports whether the entry is older than ttl.
func (e *OAuthStateEntry) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// AuthorizationURL is returned when a flow is started.
type AuthorizationURL struct {
	URL       string    `json:"authorization_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthAttempt is an audit record of a callback outcome.
type OAuthAttempt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Platform  Platform  `json:"platform"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
