package domain

import "time"

// ConnectedAtPolicy decides what happens to ConnectedAt when a user
// reconnects a platform that already has a connection row.
type ConnectedAtPolicy string

const (
	// ConnectedAtPreserve keeps the timestamp of the first connection.
	ConnectedAtPreserve ConnectedAtPolicy = "preserve"
	// ConnectedAtReset stamps the time of the latest reconnection.
	ConnectedAtReset ConnectedAtPolicy = "reset"
)

// IsValid reports whether the policy is recognised.
func (p ConnectedAtPolicy) IsValid() bool {
	return p == ConnectedAtPreserve || p == ConnectedAtReset
}

// PlatformConnection is a user's link to one platform account.
// There is at most one connection per (UserID, Platform).
// Tokens are plaintext here and never serialized.
type PlatformConnection struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Platform         Platform   `json:"platform"`
	AccessToken      string     `json:"-"`
	RefreshToken     string     `json:"-"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
	PlatformUserID   string     `json:"platform_user_id"`
	PlatformUsername string     `json:"platform_username,omitempty"`
	ScopesGranted    []string   `json:"scopes_granted"`
	ConnectedAt      time.Time  `json:"connected_at"`
	LastSynced       *time.Time `json:"last_synced,omitempty"`
	IsActive         bool       `json:"is_active"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsTokenExpired reports whether the access token is past its expiry.
func (c *PlatformConnection) IsTokenExpired(now time.Time) bool {
	return IsTokenExpired(c.TokenExpiresAt, now)
}

// IsTokenExpired reports whether an expiry has been reached. A nil expiry
// means the platform did not report one and the token is treated as valid.
func IsTokenExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return !now.Before(*expiresAt)
}

// ToSummary returns the token-free view of the connection.
func (c *PlatformConnection) ToSummary(now time.Time) *ConnectionSummary {
	return &ConnectionSummary{
		Platform:         c.Platform,
		PlatformUserID:   c.PlatformUserID,
		PlatformUsername: c.PlatformUsername,
		ScopesGranted:    c.ScopesGranted,
		ConnectedAt:      c.ConnectedAt,
		LastSynced:       c.LastSynced,
		TokenExpiresAt:   c.TokenExpiresAt,
		TokenExpired:     c.IsTokenExpired(now),
		IsActive:         c.IsActive,
	}
}

// ConnectionSummary is the public representation of a connection.
type ConnectionSummary struct {
	Platform         Platform   `json:"platform"`
	PlatformUserID   string     `json:"platform_user_id"`
	PlatformUsername string     `json:"platform_username,omitempty"`
	ScopesGranted    []string   `json:"scopes_granted"`
	ConnectedAt      time.Time  `json:"connected_at"`
	LastSynced       *time.Time `json:"last_synced,omitempty"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
	TokenExpired     bool       `json:"token_expired"`
	IsActive         bool       `json:"is_active"`
}
