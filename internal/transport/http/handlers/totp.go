package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// TOTPHandler manages second-factor enrollment for the authenticated user.
type TOTPHandler struct {
	stepUp        *usecase.StepUpService
	impersonation *usecase.ImpersonationService
}

// NewTOTPHandler constructs TOTPHandler.
func NewTOTPHandler(stepUp *usecase.StepUpService, impersonation *usecase.ImpersonationService) *TOTPHandler {
	return &TOTPHandler{stepUp: stepUp, impersonation: impersonation}
}

// RegisterRoutes binds TOTP management routes. All require authentication.
func (h *TOTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/enroll", h.enroll)
	r.POST("/confirm", h.confirm)
	r.POST("/disable", h.disable)
	r.POST("/backup-codes", h.regenerateBackupCodes)
}

// enroll provisions a new TOTP secret. The factor stays disabled until
// the first code is confirmed.
func (h *TOTPHandler) enroll(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	setup, err := h.stepUp.BeginTOTPEnrollment(c.Request.Context(), session, h.impersonation)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, TOTPSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURL: setup.ProvisioningURL,
	})
}

// confirm verifies the first authenticator code, enables the factor, and
// returns single-use backup codes.
func (h *TOTPHandler) confirm(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TOTPConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation payload"))
		return
	}

	codes, err := h.stepUp.ConfirmTOTPEnrollment(c.Request.Context(), session, h.impersonation,
		strings.TrimSpace(req.Code), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// disable turns the second factor off after password re-verification.
func (h *TOTPHandler) disable(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TOTPDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid disable payload"))
		return
	}

	err := h.stepUp.DisableTOTP(c.Request.Context(), session, h.impersonation,
		req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "totp disabled"})
}

// regenerateBackupCodes replaces all backup codes with a fresh set.
func (h *TOTPHandler) regenerateBackupCodes(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	codes, err := h.stepUp.RegenerateBackupCodes(c.Request.Context(), session, h.impersonation)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}
