package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-social/internal/crypto"
	"github.com/custodia-labs/sercha-social/internal/telemetry"
)

// Ensure oauthService implements OAuthService
var _ driving.OAuthService = (*oauthService)(nil)

// DefaultStateTTL bounds how long a user has to complete consent.
const DefaultStateTTL = 10 * time.Minute

// DefaultRefreshTimeout bounds one shared token refresh, including any
// rate limit wait inside the adapter.
const DefaultRefreshTimeout = 5 * time.Minute

// OAuthServiceConfig holds configuration for the OAuth service.
type OAuthServiceConfig struct {
	// Platforms resolves platform adapters.
	Platforms driven.PlatformRegistry

	// StateStore manages pending authorization flows.
	StateStore driven.OAuthStateStore

	// Connections persists platform connections.
	Connections driven.ConnectionStore

	// Jobs persists proactive refresh schedules.
	Jobs driven.RefreshJobStore

	// AuditLog records callback outcomes. Optional.
	AuditLog driven.AuditLog

	// Encryptor protects tokens at rest.
	Encryptor driven.TokenEncryptor

	// ConnectedAtPolicy applies on reconnect (default: preserve).
	ConnectedAtPolicy domain.ConnectedAtPolicy

	// StateTTL is reported as the authorization URL expiry (default: 10m).
	StateTTL time.Duration

	// RefreshTimeout bounds a refresh and its persistence (default: 5m).
	RefreshTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// oauthService implements the OAuthService interface.
type oauthService struct {
	platforms      driven.PlatformRegistry
	states         driven.OAuthStateStore
	connections    driven.ConnectionStore
	jobs           driven.RefreshJobStore
	auditLog       driven.AuditLog
	encryptor      driven.TokenEncryptor
	policy         domain.ConnectedAtPolicy
	stateTTL       time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	// refreshes collapses concurrent refreshes of one connection so a
	// rotating refresh token is only spent once.
	refreshes singleflight.Group
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(cfg OAuthServiceConfig) driving.OAuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.ConnectedAtPolicy
	if policy == "" {
		policy = domain.ConnectedAtPreserve
	}
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &oauthService{
		platforms:      cfg.Platforms,
		states:         cfg.StateStore,
		connections:    cfg.Connections,
		jobs:           cfg.Jobs,
		auditLog:       cfg.AuditLog,
		encryptor:      cfg.Encryptor,
		policy:         policy,
		stateTTL:       ttl,
		refreshTimeout: refreshTimeout,
		logger:         logger,
		now:            now,
	}
}

// adapter returns the configured adapter for a platform.
func (s *oauthService) adapter(platform domain.Platform) (driven.PlatformAdapter, error) {
	a, ok := s.platforms.Get(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platform)
	}
	if !a.Configured() {
		return nil, driving.ErrOAuthNotConfigured
	}
	return a, nil
}

// GenerateAuthorizationURL creates a PKCE pair, stores the verifier
// under a fresh state, and asks the adapter for the consent URL.
func (s *oauthService) GenerateAuthorizationURL(ctx context.Context, platform domain.Platform, userID string) (*domain.AuthorizationURL, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	pair, err := crypto.CreatePKCEPair()
	if err != nil {
		return nil, fmt.Errorf("create pkce pair: %w", err)
	}

	state, err := s.states.Store(ctx, userID, platform, pair.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("store oauth state: %w", err)
	}

	telemetry.RecordOAuthFlow(string(platform), telemetry.OutcomeStarted)
	telemetry.LoggerWithCorr(ctx, s.logger).Info("oauth flow started", "platform", platform, "user_id", userID)

	return &domain.AuthorizationURL{
		URL:       a.BuildAuthorizationURL(state, pair.CodeChallenge),
		State:     state,
		ExpiresAt: s.now().Add(s.stateTTL),
	}, nil
}

// GetOAuthState consumes a pending state.
func (s *oauthService) GetOAuthState(ctx context.Context, state string) (*domain.OAuthStateEntry, error) {
	if state == "" {
		return nil, nil
	}
	return s.states.Retrieve(ctx, state)
}

func (s *oauthService) ExchangeCodeForTokens(ctx context.Context, platform domain.Platform, code, codeVerifier string) (*domain.OAuthTokens, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "oauth.exchange", attribute.String("platform", string(platform)))
	defer span.End()

	tokens, err := a.ExchangeCodeForTokens(ctx, code, codeVerifier)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("%s exchange: %w", platform, domain.ErrTokenExchangeFailed)
	}
	return tokens, nil
}

func (s *oauthService) GetUserInfo(ctx context.Context, platform domain.Platform, accessToken string) (*domain.PlatformUserInfo, error) {
	a, err := s.adapter(platform)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "oauth.user_info", attribute.String("platform", string(platform)))
	defer span.End()

	info, err := a.GetUserInfo(ctx, accessToken)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if info == nil || info.PlatformUserID == "" {
		return nil, fmt.Errorf("%s user info: %w", platform, domain.ErrUserInfoFailed)
	}
	return info, nil
}

// SavePlatformConnection encrypts the tokens and upserts the connection.
func (s *oauthService) SavePlatformConnection(ctx context.Context, req driving.SaveConnectionRequest) (*domain.PlatformConnection, error) {
	if req.UserID == "" || req.Tokens == nil || req.Tokens.AccessToken == "" || req.UserInfo == nil {
		return nil, fmt.Errorf("%w: user, tokens and user info are required", domain.ErrInvalidInput)
	}

	accessEnc, err := s.encryptor.Encrypt(req.Tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshEnc string
	if req.Tokens.RefreshToken != "" {
		if refreshEnc, err = s.encryptor.Encrypt(req.Tokens.RefreshToken); err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	scopes := req.ScopesGranted
	if len(scopes) == 0 {
		scopes = req.Tokens.Scopes()
	}
	if len(scopes) == 0 {
		if a, ok := s.platforms.Get(req.Platform); ok {
			scopes = a.Scopes()
		}
	}

	now := s.now()
	stored, err := s.connections.Upsert(ctx, &driven.ConnectionRecord{
		ID:                    uuid.NewString(),
		UserID:                req.UserID,
		Platform:              req.Platform,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		TokenExpiresAt:        req.Tokens.ExpiresAt(now),
		PlatformUserID:        req.UserInfo.PlatformUserID,
		PlatformUsername:      req.UserInfo.PlatformUsername,
		ScopesGranted:         append([]string(nil), scopes...),
		ConnectedAt:           now,
		IsActive:              true,
		UpdatedAt:             now,
	}, s.policy)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}

	conn := toConnection(stored)
	conn.AccessToken = req.Tokens.AccessToken
	conn.RefreshToken = req.Tokens.RefreshToken
	return conn, nil
}

// ScheduleTokenRefresh creates the proactive refresh job for platforms
// whose policy asks for one.
func (s *oauthService) ScheduleTokenRefresh(ctx context.Context, userID string, platform domain.Platform) error {
	a, ok := s.platforms.Get(platform)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, platform)
	}
	policy := a.RefreshPolicy()
	if !policy.Proactive() {
		return nil
	}

	now := s.now()
	job := &domain.RefreshJob{
		UserID:    userID,
		Platform:  platform,
		Interval:  policy.Interval,
		NextRunAt: now.Add(policy.Interval),
		CreatedAt: now,
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save refresh job: %w", err)
	}

	s.logger.Debug("token refresh scheduled", "platform", platform, "user_id", userID, "next_run_at", job.NextRunAt)
	return nil
}

// Callback completes an authorization flow and records the outcome.
func (s *oauthService) Callback(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
	attempt := &domain.OAuthAttempt{Platform: req.Platform, IPAddress: req.IPAddress}

	resp, err := s.callback(ctx, req, attempt)

	outcome := telemetry.OutcomeSuccess
	attempt.Success = err == nil
	if err != nil {
		outcome = telemetry.OutcomeError
		if errors.Is(err, domain.ErrAccessDenied) {
			outcome = telemetry.OutcomeDenied
		}
		attempt.Error = errorCode(err)
	}
	telemetry.RecordOAuthFlow(string(req.Platform), outcome)
	s.LogOAuthAttempt(ctx, attempt)

	return resp, err
}

func (s *oauthService) callback(ctx context.Context, req driving.CallbackRequest, attempt *domain.OAuthAttempt) (*driving.CallbackResponse, error) {
	logger := telemetry.LoggerWithCorr(ctx, s.logger).With("platform", req.Platform)

	if req.Error != "" {
		// Consume the state so the flow cannot be resumed and the
		// attempt can be attributed.
		if entry, _ := s.GetOAuthState(ctx, req.State); entry != nil {
			attempt.UserID = entry.UserID
		}
		logger.Info("oauth authorization denied", "error", req.Error)
		return nil, driving.NewAccessDeniedError(req.Error, req.ErrorDescription)
	}

	if req.Code == "" || req.State == "" {
		return nil, driving.ErrOAuthMissingParams
	}

	entry, err := s.GetOAuthState(ctx, req.State)
	if err != nil {
		return nil, fmt.Errorf("retrieve oauth state: %w", err)
	}
	if entry == nil {
		logger.Warn("oauth callback with unknown or expired state")
		return nil, driving.ErrOAuthInvalidState
	}
	attempt.UserID = entry.UserID
	if entry.Platform != req.Platform {
		logger.Warn("oauth state issued for another platform", "state_platform", entry.Platform)
		return nil, driving.ErrOAuthInvalidState
	}

	tokens, err := s.ExchangeCodeForTokens(ctx, req.Platform, req.Code, entry.CodeVerifier)
	if err != nil {
		if errors.Is(err, domain.ErrPlatformNotConfigured) || errors.Is(err, domain.ErrUnsupportedPlatform) {
			return nil, err
		}
		return nil, driving.ErrOAuthExchangeFailed
	}

	info, err := s.GetUserInfo(ctx, req.Platform, tokens.AccessToken)
	if err != nil {
		return nil, driving.ErrOAuthUserInfoFailed
	}

	conn, err := s.SavePlatformConnection(ctx, driving.SaveConnectionRequest{
		UserID:   entry.UserID,
		Platform: req.Platform,
		Tokens:   tokens,
		UserInfo: info,
	})
	if err != nil {
		logger.Error("failed to save connection", "user_id", entry.UserID, "error", err)
		return nil, driving.ErrOAuthPersistenceFailed
	}

	if err := s.ScheduleTokenRefresh(ctx, entry.UserID, req.Platform); err != nil {
		logger.Warn("failed to schedule token refresh", "user_id", entry.UserID, "error", err)
	}

	account := info.PlatformUsername
	if account == "" {
		account = info.PlatformUserID
	}
	logger.Info("platform connected", "user_id", entry.UserID, "platform_user_id", info.PlatformUserID)

	return &driving.CallbackResponse{
		Connection: conn.ToSummary(s.now()),
		Message:    fmt.Sprintf("Connected %s account %s", req.Platform.DisplayName(), account),
	}, nil
}

// GetConnection returns the active connection with decrypted tokens.
func (s *oauthService) GetConnection(ctx context.Context, userID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	rec, err := s.connections.Get(ctx, userID, platform)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if rec == nil || !rec.IsActive {
		return nil, nil
	}

	conn := toConnection(rec)
	if conn.AccessToken, err = s.encryptor.Decrypt(rec.AccessTokenEncrypted); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if rec.RefreshTokenEncrypted != "" {
		if conn.RefreshToken, err = s.encryptor.Decrypt(rec.RefreshTokenEncrypted); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return conn, nil
}

// ListConnections returns summaries without touching token material.
func (s *oauthService) ListConnections(ctx context.Context, userID string) ([]*domain.ConnectionSummary, error) {
	recs, err := s.connections.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	now := s.now()
	out := make([]*domain.ConnectionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toConnection(rec).ToSummary(now))
	}
	return out, nil
}

// GetValidAccessToken is the only way callers should obtain a token.
func (s *oauthService) GetValidAccessToken(ctx context.Context, userID string, platform domain.Platform) (string, error) {
	conn, err := s.GetConnection(ctx, userID, platform)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", domain.ErrNotFound
	}
	if !conn.IsTokenExpired(s.now()) {
		return conn.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx, conn, domain.RefreshTriggerOnDemand)
	if err != nil {
		if errors.Is(err, domain.ErrTokenRefreshFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrTokenRefreshFailed, err)
	}
	return refreshed.AccessToken, nil
}

// RefreshConnection refreshes the connection's tokens regardless of expiry.
func (s *oauthService) RefreshConnection(ctx context.Context, userID string, platform domain.Platform, trigger domain.RefreshTrigger) (*domain.PlatformConnection, error) {
	conn, err := s.GetConnection(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrNotFound
	}
	return s.refresh(ctx, conn, trigger)
}

func (s *oauthService) refresh(ctx context.Context, conn *domain.PlatformConnection, trigger domain.RefreshTrigger) (*domain.PlatformConnection, error) {
	key := conn.UserID + "|" + string(conn.Platform)
	ch := s.refreshes.DoChan(key, func() (any, error) {
		// The shared refresh is detached from whichever caller started it:
		// once a platform rotates the refresh token the new pair must be
		// persisted even if that caller has gone away.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()
		return s.doRefresh(rctx, conn, trigger)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Each caller gets its own copy.
		refreshed := *res.Val.(*domain.PlatformConnection)
		return &refreshed, nil
	}
}

func (s *oauthService) doRefresh(ctx context.Context, conn *domain.PlatformConnection, trigger domain.RefreshTrigger) (*domain.PlatformConnection, error) {
	logger := telemetry.LoggerWithCorr(ctx, s.logger).With("platform", conn.Platform, "user_id", conn.UserID, "trigger", trigger)

	a, ok := s.platforms.Get(conn.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, conn.Platform)
	}

	policy := a.RefreshPolicy()
	credential := conn.RefreshToken
	if policy.Credential == domain.RefreshWithAccessToken {
		credential = conn.AccessToken
	}
	if credential == "" {
		logger.Warn("connection has no refresh credential")
		return nil, fmt.Errorf("%s: %w", conn.Platform, domain.ErrMissingCredential)
	}

	ctx, span := telemetry.StartSpan(ctx, "oauth.refresh",
		attribute.String("platform", string(conn.Platform)),
		attribute.String("trigger", string(trigger)),
	)
	defer span.End()

	start := time.Now()
	tokens, err := a.RefreshAccessToken(ctx, credential)
	telemetry.RecordTokenRefresh(string(conn.Platform), string(trigger), err == nil, time.Since(start).Seconds())
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Warn("token refresh failed", "error", err)
		return nil, err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("%s refresh: %w", conn.Platform, domain.ErrTokenRefreshFailed)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}

	accessEnc, err := s.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshEnc string
	if refreshToken != "" {
		if refreshEnc, err = s.encryptor.Encrypt(refreshToken); err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	now := s.now()
	update := driven.TokenUpdate{
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		TokenExpiresAt:        tokens.ExpiresAt(now),
		UpdatedAt:             now,
	}
	if err := s.connections.UpdateTokens(ctx, conn.UserID, conn.Platform, update); err != nil {
		return nil, fmt.Errorf("update tokens: %w", err)
	}

	refreshed := *conn
	refreshed.AccessToken = tokens.AccessToken
	refreshed.RefreshToken = refreshToken
	refreshed.TokenExpiresAt = update.TokenExpiresAt
	refreshed.UpdatedAt = now

	logger.Info("token refreshed", "expires_at", update.TokenExpiresAt)
	return &refreshed, nil
}

// Disconnect deactivates the connection. The row is kept and revived by
// the next successful callback. Tokens are not revoked on the platform.
func (s *oauthService) Disconnect(ctx context.Context, userID string, platform domain.Platform) (*driving.DisconnectResponse, error) {
	if err := s.connections.SetActive(ctx, userID, platform, false); err != nil {
		return nil, err
	}
	if err := s.jobs.Delete(ctx, userID, platform); err != nil {
		s.logger.Warn("failed to delete refresh job", "platform", platform, "user_id", userID, "error", err)
	}

	telemetry.LoggerWithCorr(ctx, s.logger).Info("platform disconnected", "platform", platform, "user_id", userID)

	return &driving.DisconnectResponse{
		Success:        true,
		Platform:       string(platform),
		DisconnectedAt: s.now(),
	}, nil
}

func (s *oauthService) MarkSynced(ctx context.Context, userID string, platform domain.Platform) error {
	return s.connections.MarkSynced(ctx, userID, platform, s.now())
}

// LogOAuthAttempt writes to the audit log, best effort.
func (s *oauthService) LogOAuthAttempt(ctx context.Context, attempt *domain.OAuthAttempt) {
	if s.auditLog == nil || attempt == nil {
		return
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	if err := s.auditLog.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("failed to record oauth attempt", "platform", attempt.Platform, "error", err)
	}
}

// toConnection maps a record to a connection without token material.
func toConnection(rec *driven.ConnectionRecord) *domain.PlatformConnection {
	return &domain.PlatformConnection{
		ID:               rec.ID,
		UserID:           rec.UserID,
		Platform:         rec.Platform,
		TokenExpiresAt:   rec.TokenExpiresAt,
		PlatformUserID:   rec.PlatformUserID,
		PlatformUsername: rec.PlatformUsername,
		ScopesGranted:    rec.ScopesGranted,
		ConnectedAt:      rec.ConnectedAt,
		LastSynced:       rec.LastSynced,
		IsActive:         rec.IsActive,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// errorCode is the short code stored in the audit log.
func errorCode(err error) string {
	var oe *driving.OAuthError
	if errors.As(err, &oe) {
		return oe.Code
	}
	switch {
	case errors.Is(err, domain.ErrPlatformNotConfigured):
		return "platform_not_configured"
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return "unsupported_platform"
	}
	return "server_error"
}
