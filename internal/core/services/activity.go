package services

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-social/internal/telemetry"
)

// Ensure activityService implements ActivityService
var _ driving.ActivityService = (*activityService)(nil)

type activityService struct {
	oauth   driving.OAuthService
	clients map[domain.Platform]driven.ActivityClient
	logger  *slog.Logger
}

// NewActivityService creates an activity service over the given clients.
// Tokens are always obtained through the OAuth service.
func NewActivityService(oauth driving.OAuthService, logger *slog.Logger, clients ...driven.ActivityClient) driving.ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[domain.Platform]driven.ActivityClient, len(clients))
	for _, c := range clients {
		m[c.Platform()] = c
	}
	return &activityService{oauth: oauth, clients: m, logger: logger}
}

func (s *activityService) GetActivity(ctx context.Context, userID string, platform domain.Platform, max int) (*domain.Activity, error) {
	client, ok := s.clients[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no activity api for %s", domain.ErrUnsupportedPlatform, platform)
	}

	token, err := s.oauth.GetValidAccessToken(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "activity.fetch", attribute.String("platform", string(platform)))
	defer span.End()

	activity, err := client.Activity(ctx, token, max)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.oauth.MarkSynced(ctx, userID, platform); err != nil {
		telemetry.LoggerWithCorr(ctx, s.logger).Warn("failed to mark connection synced",
			"platform", platform, "user_id", userID, "error", err)
	}
	return activity, nil
}
