package platforms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
)

const (
	// DefaultTimeout bounds every upstream call when no client is injected.
	DefaultTimeout = 15 * time.Second

	maxBodyBytes = 1 << 20
	maxLogBody   = 512
)

// UpstreamError is a non-2xx platform response. It stays inside the
// adapters; callers only ever see the domain sentinel.
type UpstreamError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// DefaultClient returns client, or a new one with DefaultTimeout if nil.
func DefaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// WithHTTPClient makes x/oauth2 use client for token requests.
func WithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// Do executes req and returns the body of a 2xx response.
func Do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, sanitize(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	}
	return body, nil
}

// PostForm sends an application/x-www-form-urlencoded POST.
func PostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return Do(client, req)
}

// Get sends a GET, with a bearer token when one is given.
func Get(ctx context.Context, client *http.Client, endpoint, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return Do(client, req)
}

// sanitize drops the request URL from transport errors. Some platforms
// take the access token as a query parameter.
func sanitize(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s request failed: %w", ue.Op, ue.Err)
	}
	return err
}

// Fail logs an upstream failure and returns an error that only names the
// platform, the operation and the sentinel.
func Fail(logger *slog.Logger, platform domain.Platform, op string, sentinel, err error) error {
	attrs := []any{
		slog.String("platform", string(platform)),
		slog.String("op", op),
	}

	var body []byte
	var ue *UpstreamError
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &ue):
		attrs = append(attrs, slog.String("error", ue.Error()), slog.Int("status", ue.StatusCode))
		body = ue.Body
	case errors.As(err, &re):
		// RetrieveError.Error embeds the response body.
		attrs = append(attrs, slog.String("error", "token endpoint rejected request"))
		if re.Response != nil {
			attrs = append(attrs, slog.Int("status", re.Response.StatusCode))
		}
		if re.ErrorCode != "" {
			attrs = append(attrs, slog.String("error_code", re.ErrorCode))
		}
		body = re.Body
	default:
		attrs = append(attrs, slog.String("error", sanitize(err).Error()))
	}

	logger.Warn("platform request failed", attrs...)
	if len(body) > 0 {
		logger.Debug("platform error body", slog.String("platform", string(platform)), slog.String("body", truncate(body)))
	}

	return fmt.Errorf("%s %s: %w", platform, op, sentinel)
}

func truncate(b []byte) string {
	if len(b) > maxLogBody {
		return string(b[:maxLogBody]) + "..."
	}
	return string(b)
}

// TokensFromOAuth2 normalizes an x/oauth2 token.
func TokensFromOAuth2(tok *oauth2.Token, now time.Time) *domain.OAuthTokens {
	out := &domain.OAuthTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	switch {
	case tok.ExpiresIn > 0:
		out.ExpiresIn = int(tok.ExpiresIn)
	case !tok.Expiry.IsZero():
		out.ExpiresIn = int(math.Round(tok.Expiry.Sub(now).Seconds()))
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}
