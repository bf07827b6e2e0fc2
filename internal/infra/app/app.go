package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-auth/internal/infra/kafka"
	"github.com/arklim/social-platform-auth/internal/infra/logger"
	"github.com/arklim/social-platform-auth/internal/infra/notify"
	redisinfra "github.com/arklim/social-platform-auth/internal/infra/redis"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	postgresrepo "github.com/arklim/social-platform-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-auth/internal/repository/redis"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/transport/http/routes"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// Application owns the process-wide resources and the HTTP engine.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

// New wires configuration, infrastructure, repositories, and services
// into a runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init hasher: %w", err)
	}

	tokens, err := security.NewTokenManager(security.TokenManagerConfig{
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		StepUpSecret:  []byte(cfg.JWT.StepUpSecret),
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
		StepUpTTL:     cfg.JWT.StepUpTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	rateStore := redisrepo.NewRateLimitStore(redisClient.Client(), cfg.Redis.RateLimitPrefix)

	loginLimiter, err := usecase.NewRateLimiter(rateStore, cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.WindowDuration, log)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	stepUpLimiter, err := usecase.NewRateLimiter(rateStore, cfg.RateLimit.StepUpMaxAttempts, cfg.RateLimit.WindowDuration, log)
	if err != nil {
		return nil, fmt.Errorf("init step-up limiter: %w", err)
	}
	refreshLimiter, err := usecase.NewRateLimiter(rateStore, cfg.RateLimit.RefreshMaxAttempts, cfg.RateLimit.WindowDuration, log)
	if err != nil {
		return nil, fmt.Errorf("init refresh limiter: %w", err)
	}
	csrfFailures, err := usecase.NewRateLimiter(rateStore, cfg.CSRF.FailureThreshold, cfg.CSRF.FailureWindow, log)
	if err != nil {
		return nil, fmt.Errorf("init csrf failure limiter: %w", err)
	}

	audit := newAuditPublisher(cfg, log)
	notifier := notify.NewLogNotifier(log)

	hierarchy := usecase.NewRoleHierarchyService(repos.Roles, cfg.Hierarchy.MaxDepth, log)
	base := usecase.NewAccessService(hierarchy, repos.Roles, log)
	access := usecase.NewAccessService(hierarchy, repos.Roles, log,
		usecase.NewOrganizationVoter(base),
		usecase.NewUserVoter(base),
	)

	persistent := usecase.NewPersistentTokenService(repos.Tokens, audit, cfg.PersistentLogin.TTL, log)
	impersonation := usecase.NewImpersonationService(access, repos.Users, audit, cfg.Impersonation.Timeout, log)

	authService := usecase.NewAuthService(
		repos.Users,
		access,
		hasher,
		tokens,
		persistent,
		loginLimiter,
		security.NewPasswordPolicy(),
		usecase.LockoutPolicy{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
		audit,
		notifier,
		log,
	)

	stepUpService := usecase.NewStepUpService(
		repos.Users,
		authService,
		tokens,
		hasher,
		stepUpLimiter,
		audit,
		notifier,
		cfg.App.Name,
		log,
	)

	csrfGuard := middleware.NewCSRFGuard(middleware.CSRFOptions{
		CookieName:    cfg.CSRF.CookieName,
		HeaderName:    cfg.CSRF.HeaderName,
		ServiceHeader: "X-Service-Token",
		AllowPaths: []string{
			"/api/v1/auth/login",
			"/api/v1/auth/2fa/verify",
			"/api/v1/auth/refresh",
			"/api/v1/auth/restore",
		},
		CookieSecure: cfg.CSRF.CookieSecure,
	}, csrfFailures, audit, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		Tokens:         tokens,
		Users:          repos.Users,
		Roles:          repos.Roles,
		LoginLimiter:   loginLimiter,
		RefreshLimiter: refreshLimiter,
		CSRFGuard:      csrfGuard,
		Metrics:        metrics,
		Database:       pool,
		Cache:          redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			StepUp:        stepUpService,
			Impersonation: impersonation,
			Access:        access,
			Hierarchy:     hierarchy,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func newAuditPublisher(cfg *config.AppConfig, log *zap.Logger) port.AuditPublisher {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub audit publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub audit publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}

	log.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewAuditPublisher(producer, cfg.App, log)
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully and releases infrastructure resources.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	var metricsSrv *http.Server
	if port := a.cfg.Telemetry.MetricsPort; port > 0 && port != a.cfg.App.Port {
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, port),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("starting metrics listener", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return err
	}
}
