package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// ImpersonationHandler lets platform administrators act as another user
// for a bounded window.
type ImpersonationHandler struct {
	impersonation *usecase.ImpersonationService
	access        *usecase.AccessService
	users         port.UserRepository
	tokens        *security.TokenManager
}

// NewImpersonationHandler constructs ImpersonationHandler.
func NewImpersonationHandler(
	impersonation *usecase.ImpersonationService,
	access *usecase.AccessService,
	users port.UserRepository,
	tokens *security.TokenManager,
) *ImpersonationHandler {
	return &ImpersonationHandler{
		impersonation: impersonation,
		access:        access,
		users:         users,
		tokens:        tokens,
	}
}

// RegisterRoutes binds impersonation routes. Both require authentication.
func (h *ImpersonationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/start", h.start)
	r.POST("/end", h.end)
}

// start opens an impersonation window and returns an access token that
// carries the target's identity plus the acting admin's context.
func (h *ImpersonationHandler) start(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ImpersonationStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid impersonation payload"))
		return
	}

	ctx := c.Request.Context()

	admin, err := h.users.GetByID(ctx, session.UserID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	imp, err := h.impersonation.Start(ctx, session, admin,
		strings.TrimSpace(req.TargetUserID), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	target, err := h.users.GetByID(ctx, imp.TargetID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	roles, err := h.access.EffectiveRoles(ctx, target, domain.PlatformScope())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	token, claims, err := h.tokens.IssueImpersonatedAccessToken(*target, roles, *imp, h.impersonation.Timeout())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, ImpersonationResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   claims.ExpiresAt.Time,
		TargetUser: UserSummary{
			ID:       target.ID,
			Username: target.Username,
			Email:    target.Email,
			Roles:    roles,
		},
		MinutesRemaining: usecase.ImpersonationTimeRemaining(imp, h.impersonation.Timeout(), claims.IssuedAt.Time),
	})
}

// end closes the active impersonation context and returns a fresh token
// for the administrator's own identity. Ending without an active context
// still succeeds.
func (h *ImpersonationHandler) end(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	ctx := c.Request.Context()

	if session.Impersonation == nil {
		c.JSON(http.StatusOK, MessageResponse{Message: "not impersonating"})
		return
	}

	if err := h.impersonation.End(ctx, session.Impersonation, c.ClientIP(), c.Request.UserAgent()); err != nil {
		respondAuthError(c, err)
		return
	}

	admin, err := h.users.GetByID(ctx, session.Impersonation.AdminID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	roles, err := h.access.EffectiveRoles(ctx, admin, domain.PlatformScope())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	token, claims, err := h.tokens.IssueAccessToken(*admin, roles)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   claims.ExpiresAt.Time,
		User: UserSummary{
			ID:       admin.ID,
			Username: admin.Username,
			Email:    admin.Email,
			Roles:    roles,
		},
	})
}
