package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// LoginRequest is the credential login payload.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
	// Fingerprint is an optional opaque device identifier used for
	// new-device notifications.
	Fingerprint string `json:"fingerprint"`
}

// UserSummary is the public projection of an authenticated user.
type UserSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// SessionResponse carries the issued token set.
type SessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         UserSummary `json:"user"`
}

// StepUpChallengeResponse tells the client a second factor is required.
type StepUpChallengeResponse struct {
	StepUpRequired bool   `json:"step_up_required"`
	StepUpToken    string `json:"step_up_token"`
}

// StepUpVerifyRequest completes a pending step-up challenge.
type StepUpVerifyRequest struct {
	StepUpToken string `json:"step_up_token" binding:"required"`
	Code        string `json:"code" binding:"required"`
	RememberMe  bool   `json:"remember_me"`
	Fingerprint string `json:"fingerprint"`
}

// StepUpVerifyResponse is the session plus backup-code bookkeeping.
type StepUpVerifyResponse struct {
	SessionResponse
	UsedBackupCode       bool `json:"used_backup_code,omitempty"`
	BackupCodesRemaining int  `json:"backup_codes_remaining,omitempty"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse reports how many persistent tokens were revoked.
type LogoutAllResponse struct {
	RevokedTokens int `json:"revoked_tokens"`
}

// ChangePasswordRequest rotates the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// MessageResponse is a generic acknowledgement payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// CSRFTokenResponse returns the freshly issued double-submit token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// TOTPSetupResponse carries enrollment material for an authenticator app.
type TOTPSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
}

// TOTPConfirmRequest verifies the first code from the authenticator.
type TOTPConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// BackupCodesResponse returns plain backup codes. They are shown once and
// stored only as hashes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// TOTPDisableRequest requires password re-verification.
type TOTPDisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// ImpersonationStartRequest names the target user.
type ImpersonationStartRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
}

// ImpersonationResponse carries the impersonated access token and the
// remaining window.
type ImpersonationResponse struct {
	AccessToken      string      `json:"access_token"`
	TokenType        string      `json:"token_type"`
	ExpiresAt        time.Time   `json:"expires_at"`
	TargetUser       UserSummary `json:"target_user"`
	MinutesRemaining int         `json:"minutes_remaining"`
}

// RoleCreateRequest creates a role, optionally under a parent.
type RoleCreateRequest struct {
	Name       string  `json:"name" binding:"required"`
	ParentName *string `json:"parent_name"`
}

// RoleReparentRequest moves a role under a new parent (or to the root).
type RoleReparentRequest struct {
	ParentName *string `json:"parent_name"`
}

// RolePayload is the public projection of a role.
type RolePayload struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ParentName *string `json:"parent_name,omitempty"`
}

// RoleListResponse lists all defined roles.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// RoleAssignRequest grants a role to a user, optionally scoped to an
// organization.
type RoleAssignRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Role   string  `json:"role" binding:"required"`
	OrgID  *string `json:"org_id"`
}

// HealthResponse describes liveness probe output.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
