package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrUnsupportedPlatform indicates the platform name is not recognised
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrPlatformNotConfigured indicates the platform has no client credentials
	ErrPlatformNotConfigured = errors.New("platform not configured")

	// ErrAccessDenied indicates the user declined the authorization request
	ErrAccessDenied = errors.New("access denied")

	// ErrMissingCodeOrState indicates the callback lacked code or state
	ErrMissingCodeOrState = errors.New("missing code or state")

	// ErrInvalidState indicates the state is unknown, expired or already used
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrTokenExchangeFailed indicates the code-for-token exchange failed
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenRefreshFailed indicates the platform refused a token refresh
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrUserInfoFailed indicates the platform profile lookup failed
	ErrUserInfoFailed = errors.New("failed to fetch user info")

	// ErrMissingCredential indicates a connection lacks the token needed to refresh
	ErrMissingCredential = errors.New("missing refresh credential")

	// ErrActivityFailed indicates the platform activity lookup failed
	ErrActivityFailed = errors.New("failed to fetch activity")

	// ErrRateLimited indicates the platform rate limit is still exhausted
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates a backing store could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
