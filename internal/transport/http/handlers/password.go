package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// PasswordHandler exposes password management endpoints.
type PasswordHandler struct {
	auth          *usecase.AuthService
	impersonation *usecase.ImpersonationService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(auth *usecase.AuthService, impersonation *usecase.ImpersonationService) *PasswordHandler {
	return &PasswordHandler{auth: auth, impersonation: impersonation}
}

// RegisterRoutes binds password routes. All require authentication.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/change", h.change)
}

// change rotates the caller's password after re-verifying the current
// one. All persistent logins are revoked as a side effect.
func (h *PasswordHandler) change(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password payload"))
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), session, h.impersonation,
		req.CurrentPassword, req.NewPassword, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}
