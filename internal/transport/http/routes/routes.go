package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/transport/http/handlers"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	StepUp        *usecase.StepUpService
	Impersonation *usecase.ImpersonationService
	Access        *usecase.AccessService
	Hierarchy     *usecase.RoleHierarchyService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Services       ServiceSet
	Tokens         *security.TokenManager
	Users          port.UserRepository
	Roles          port.RoleRepository
	LoginLimiter   *usecase.RateLimiter
	RefreshLimiter *usecase.RateLimiter
	CSRFGuard      *middleware.CSRFGuard
	Metrics        *middleware.HTTPMetrics
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	if deps.CSRFGuard != nil {
		r.Use(deps.CSRFGuard.Validate())
	}

	authMiddleware := middleware.RequireAuth(deps.Tokens)

	checks := make(map[string]handlers.DependencyCheck, 2)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}

	healthHandler := handlers.NewHealthHandler(checks)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		var loginLimit, refreshLimit gin.HandlerFunc
		if deps.LoginLimiter != nil {
			loginLimit = middleware.RateLimit(deps.LoginLimiter, "auth_login_ip", middleware.ClientIPIdentifier())
		}
		if deps.RefreshLimiter != nil {
			refreshLimit = middleware.RateLimit(deps.RefreshLimiter, "auth_refresh_ip", middleware.ClientIPIdentifier())
		}

		authHandler := handlers.NewAuthHandler(
			deps.Services.Auth,
			deps.Services.StepUp,
			deps.Services.Impersonation,
			deps.CSRFGuard,
			deps.Config.CSRF.CookieSecure,
			deps.Config.PersistentLogin.TTL,
		)
		authHandler.RegisterRoutes(authGroup, authMiddleware, loginLimit, refreshLimit)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Auth, deps.Services.Impersonation)
		passwordGroup := api.Group("/password")
		passwordGroup.Use(authMiddleware)
		passwordHandler.RegisterRoutes(passwordGroup)

		totpHandler := handlers.NewTOTPHandler(deps.Services.StepUp, deps.Services.Impersonation)
		totpGroup := api.Group("/2fa")
		totpGroup.Use(authMiddleware)
		totpHandler.RegisterRoutes(totpGroup)

		impersonationHandler := handlers.NewImpersonationHandler(
			deps.Services.Impersonation, deps.Services.Access, deps.Users, deps.Tokens)
		impersonationGroup := api.Group("/impersonation")
		impersonationGroup.Use(authMiddleware)
		impersonationHandler.RegisterRoutes(impersonationGroup)

		if deps.Roles != nil {
			roleHandler := handlers.NewRoleHandler(deps.Roles, deps.Services.Hierarchy)
			rolesGroup := api.Group("/roles")
			rolesGroup.Use(authMiddleware, middleware.RequireRole(domain.RoleAdmin.String()))
			roleHandler.RegisterRoutes(rolesGroup)
		}
	}

	return r
}
