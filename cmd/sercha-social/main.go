package main

// @title           Sercha Social API
// @version         1.0
// @description     Connects user accounts on YouTube, TikTok, Instagram and X and keeps their OAuth tokens valid.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-social/issues

// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-social/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms/instagram"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms/tiktok"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms/twitter"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/platforms/youtube"
	"github.com/custodia-labs/sercha-social/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/sercha-social/internal/adapters/driven/redis"
	httpserver "github.com/custodia-labs/sercha-social/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-social/internal/config"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-social/internal/core/services"
	"github.com/custodia-labs/sercha-social/internal/crypto"
	"github.com/custodia-labs/sercha-social/internal/logging"
	"github.com/custodia-labs/sercha-social/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("sercha-social exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// RUN_MODE can be overridden by the first argument. "token" prints a
	// bearer token for local testing.
	mode := cfg.RunMode
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.EffectiveLogFormat())
	slog.SetDefault(logger)

	authAdapter := auth.NewAdapter(cfg.JWTSecret)
	authService := services.NewAuthService(authAdapter)

	if mode == "token" {
		return printToken(authService, os.Args[2:])
	}

	logger.Info("sercha-social starting", "version", version, "mode", mode, "environment", cfg.Environment)

	// Setup context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "sercha-social", version)
	if err != nil {
		return err
	}
	defer shutdownTracing()
	telemetry.Init()

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	pingers := map[string]httpserver.Pinger{}

	// ===== Persistence (PostgreSQL if configured, otherwise in-memory) =====
	var (
		connections driven.ConnectionStore
		jobs        driven.RefreshJobStore
		auditLog    driven.AuditLog
		states      driven.OAuthStateStore
		lock        driven.DistributedLock
		memStates   *memory.OAuthStateStore
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			ConnMaxIdleTime: cfg.DBConnIdleTime,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		logger.Info("postgres connected and schema initialized")

		connections = postgres.NewConnectionStore(db.DB)
		jobs = postgres.NewRefreshJobStore(db.DB)
		auditLog = postgres.NewAuditLog(db.DB)
		states = postgres.NewOAuthStateStore(db.DB, cfg.OAuthStateTTL)
		lock = postgres.NewAdvisoryLock(db)
		pingers["database"] = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores; connections are lost on restart")
		connections = memory.NewConnectionStore()
		jobs = memory.NewRefreshJobStore()
		auditLog = memory.NewAuditLog()
		memStates = memory.NewOAuthStateStore(cfg.OAuthStateTTL)
		states = memStates
	}

	// ===== Redis (optional): shared OAuth state and scheduler lock =====
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("redis connected")

		redisLock := redisadapter.NewLock(client)
		states = redisadapter.NewOAuthStateStore(client, cfg.OAuthStateTTL)
		lock = redisLock
		memStates = nil
		pingers["redis"] = redisLock
	}

	// ===== Platform adapters =====
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	limiter := twitter.NewRateLimiter(logger)
	limiter.OnWait = func(time.Duration) { telemetry.RecordRateLimitWait() }

	xAdapter := twitter.New(twitter.Config{
		ClientID:     cfg.X.ClientID,
		ClientSecret: cfg.X.ClientSecret,
		RedirectURI:  cfg.X.RedirectURI,
		HTTPClient:   httpClient,
		Logger:       logger,
		Limiter:      limiter,
	})

	registry := platforms.NewRegistry(
		youtube.New(youtube.Config{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RedirectURI:  cfg.YouTube.RedirectURI,
			HTTPClient:   httpClient,
			Logger:       logger,
		}),
		tiktok.New(tiktok.Config{
			ClientKey:    cfg.TikTok.ClientKey,
			ClientSecret: cfg.TikTok.ClientSecret,
			RedirectURI:  cfg.TikTok.RedirectURI,
			HTTPClient:   httpClient,
			Logger:       logger,
		}),
		instagram.New(instagram.Config{
			ClientID:     cfg.Instagram.ClientID,
			ClientSecret: cfg.Instagram.ClientSecret,
			RedirectURI:  cfg.Instagram.RedirectURI,
			HTTPClient:   httpClient,
			Logger:       logger,
		}),
		xAdapter,
	)
	for _, p := range registry.Platforms() {
		a, _ := registry.Get(p)
		logger.Info("platform adapter registered", "platform", p, "configured", a.Configured())
	}

	// ===== Services =====
	oauthService := services.NewOAuthService(services.OAuthServiceConfig{
		Platforms:         registry,
		StateStore:        states,
		Connections:       connections,
		Jobs:              jobs,
		AuditLog:          auditLog,
		Encryptor:         encryptor,
		ConnectedAtPolicy: cfg.ConnectedAtPolicy,
		StateTTL:          cfg.OAuthStateTTL,
		Logger:            logger,
	})
	activityService := services.NewActivityService(oauthService, logger, xAdapter)

	g, gctx := errgroup.WithContext(ctx)

	if memStates != nil {
		g.Go(func() error {
			memStates.Run(gctx, time.Minute)
			return nil
		})
	}

	// ===== Worker: proactive refresh scheduler =====
	if (mode == "worker" || mode == "all") && cfg.SchedulerEnabled {
		scheduler := services.NewRefreshScheduler(services.RefreshSchedulerConfig{
			Jobs:         jobs,
			Refresher:    oauthService,
			StateStore:   states,
			Lock:         lock,
			Logger:       logger,
			PollInterval: cfg.RefreshPollInterval,
		})
		if err := scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start refresh scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			scheduler.Stop()
			return nil
		})
	}

	// ===== API: HTTP server =====
	if mode == "api" || mode == "all" {
		trusted, err := httpserver.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		server := httpserver.NewServer(httpserver.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Version:        version,
			FrontendURL:    cfg.FrontendURL,
			TrustedProxies: trusted,
			Logger:         logger,
		}, httpserver.Services{
			Auth:     authService,
			OAuth:    oauthService,
			Activity: activityService,
		}, pingers)

		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sercha-social stopped")
	return nil
}

// printToken writes a bearer token for the given user id and optional email.
func printToken(authService driving.AuthService, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sercha-social token <user-id> [email]")
	}
	email := ""
	if len(args) > 1 {
		email = args[1]
	}
	token, err := authService.IssueToken(context.Background(), args[0], email, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
