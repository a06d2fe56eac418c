package domain

import "time"

// RefreshCredential names the token a platform accepts to refresh access.
type RefreshCredential int

const (
	// RefreshWithRefreshToken is the standard OAuth refresh grant.
	RefreshWithRefreshToken RefreshCredential = iota
	// RefreshWithAccessToken is used by platforms that extend the current
	// long-lived access token instead of issuing refresh tokens.
	RefreshWithAccessToken
)

// RefreshTrigger records why a refresh happened.
type RefreshTrigger string

const (
	RefreshTriggerOnDemand  RefreshTrigger = "on_demand"
	RefreshTriggerScheduled RefreshTrigger = "scheduled"
)

// RefreshPolicy describes how a platform's tokens are kept alive.
type RefreshPolicy struct {
	// Interval is the proactive refresh period. Zero means tokens are
	// only refreshed lazily when an expired token is requested.
	Interval time.Duration
	// Credential selects which stored token is sent to the platform.
	Credential RefreshCredential
	// RotatesRefreshToken is true when every refresh issues a new token.
	RotatesRefreshToken bool
}

// Proactive reports whether the platform needs scheduled refreshes.
func (p RefreshPolicy) Proactive() bool {
	return p.Interval > 0
}

// RefreshJob is a durable proactive refresh entry. There is at most one
// job per (UserID, Platform).
type RefreshJob struct {
	UserID    string        `json:"user_id"`
	Platform  Platform      `json:"platform"`
	Interval  time.Duration `json:"interval"`
	NextRunAt time.Time     `json:"next_run_at"`
	LastRunAt *time.Time    `json:"last_run_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Attempts  int           `json:"attempts"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsDue reports whether the job should run at now.
func (j *RefreshJob) IsDue(now time.Time) bool {
	return !now.Before(j.NextRunAt)
}
