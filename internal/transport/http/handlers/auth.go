package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/transport/http/middleware"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

const (
	persistentCookieName = "remember_me"
	tokenTypeBearer      = "Bearer"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth          *usecase.AuthService
	stepUp        *usecase.StepUpService
	impersonation *usecase.ImpersonationService
	csrf          *middleware.CSRFGuard
	cookieSecure  bool
	persistentTTL time.Duration
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(
	auth *usecase.AuthService,
	stepUp *usecase.StepUpService,
	impersonation *usecase.ImpersonationService,
	csrf *middleware.CSRFGuard,
	cookieSecure bool,
	persistentTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		stepUp:        stepUp,
		impersonation: impersonation,
		csrf:          csrf,
		cookieSecure:  cookieSecure,
		persistentTTL: persistentTTL,
	}
}

// RegisterRoutes binds authentication routes. The limiter middlewares
// are optional; nil entries are skipped.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth, loginLimit, refreshLimit gin.HandlerFunc) {
	r.POST("/login", chain(loginLimit, h.login)...)
	r.POST("/2fa/verify", chain(loginLimit, h.verifyStepUp)...)
	r.POST("/refresh", chain(refreshLimit, h.refresh)...)
	r.POST("/restore", chain(refreshLimit, h.restore)...)
	r.GET("/csrf", h.issueCSRF)
	r.POST("/logout-all", requireAuth, h.logoutAll)
}

func chain(mw gin.HandlerFunc, final gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{final}
	}
	return []gin.HandlerFunc{mw, final}
}

// login authenticates with identifier and password. The response is
// either a finished session or a step-up challenge.
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Identifier:  strings.TrimSpace(req.Identifier),
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Fingerprint: strings.TrimSpace(req.Fingerprint),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	if result.StepUpRequired {
		c.JSON(http.StatusOK, StepUpChallengeResponse{
			StepUpRequired: true,
			StepUpToken:    result.StepUpToken,
		})
		return
	}

	h.respondSession(c, result.Session)
}

// verifyStepUp completes a pending two-factor challenge with a TOTP or
// backup code.
func (h *AuthHandler) verifyStepUp(c *gin.Context) {
	var req StepUpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	result, err := h.stepUp.Verify(c.Request.Context(), usecase.StepUpInput{
		StepUpToken: req.StepUpToken,
		Code:        strings.TrimSpace(req.Code),
		RememberMe:  req.RememberMe,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Fingerprint: strings.TrimSpace(req.Fingerprint),
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setSessionCookies(c, result.Session)
	c.JSON(http.StatusOK, StepUpVerifyResponse{
		SessionResponse:      newSessionResponse(result.Session),
		UsedBackupCode:       result.UsedBackupCode,
		BackupCodesRemaining: result.BackupCodesRemaining,
	})
}

// refresh exchanges a valid refresh token for a new access token.
func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	session, err := h.auth.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

// restore logs in from the remember-me cookie. The presented token is
// consumed and a rotated replacement is set in its place.
func (h *AuthHandler) restore(c *gin.Context) {
	cookie, err := c.Cookie(persistentCookieName)
	if err != nil || cookie == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "no persistent login token"))
		return
	}

	session, replacement, err := h.auth.LoginWithPersistentToken(
		c.Request.Context(), cookie, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.clearPersistentCookie(c)
		respondAuthError(c, err)
		return
	}

	h.setPersistentCookie(c, replacement)
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// issueCSRF mints a fresh double-submit token.
func (h *AuthHandler) issueCSRF(c *gin.Context) {
	token, err := h.csrf.IssueCookie(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue csrf token"))
		return
	}
	c.JSON(http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// logoutAll revokes every persistent token for the caller.
func (h *AuthHandler) logoutAll(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.auth.LogoutEverywhere(c.Request.Context(), session, h.impersonation,
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.clearPersistentCookie(c)
	c.JSON(http.StatusOK, LogoutAllResponse{RevokedTokens: revoked})
}

func (h *AuthHandler) respondSession(c *gin.Context, session *usecase.SessionTokens) {
	h.setSessionCookies(c, session)
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, session *usecase.SessionTokens) {
	if session == nil {
		return
	}
	if session.PersistentToken != "" {
		h.setPersistentCookie(c, session.PersistentToken)
	}
}

func (h *AuthHandler) setPersistentCookie(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     persistentCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.persistentTTL.Seconds()),
		Secure:   h.cookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearPersistentCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     persistentCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.cookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func newSessionResponse(session *usecase.SessionTokens) SessionResponse {
	resp := SessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    session.ExpiresAt,
	}
	if session.User != nil {
		resp.User = UserSummary{
			ID:       session.User.ID,
			Username: session.User.Username,
			Email:    session.User.Email,
			Roles:    session.Roles,
		}
	}
	return resp
}

// respondAuthError maps the domain error taxonomy onto HTTP responses.
// Lockout and rate-limit errors carry structured retry hints.
func respondAuthError(c *gin.Context, err error) {
	var locked *domain.AccountLockedError
	if errors.As(err, &locked) {
		retryAfter := ceilSeconds(locked.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "account locked",
			"locked_until": locked.LockedUntil.UTC().Format(time.RFC3339),
			"retry_after":  retryAfter,
			"trace_id":     middleware.GetTraceID(c),
		})
		return
	}

	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		retryAfter := ceilSeconds(limited.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Limit", strconv.Itoa(limited.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limited.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limited.ResetAt.Unix(), 10))
		c.JSON(http.StatusTooManyRequests, middleware.ProblemDetails{
			Type:       "https://auth.social-platform.example.com/errors/rate-limit-exceeded",
			Title:      "Rate Limit Exceeded",
			Status:     http.StatusTooManyRequests,
			Detail:     fmt.Sprintf("Too many attempts. Try again in %d seconds.", retryAfter),
			Instance:   c.Request.URL.Path,
			RetryAfter: retryAfter,
			TraceID:    middleware.GetTraceID(c),
		})
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: domain.ErrValidation, Status: http.StatusBadRequest, Message: "invalid request"},
		{Err: domain.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: domain.ErrEmailNotVerified, Status: http.StatusForbidden, Message: "email not verified"},
		{Err: domain.ErrImpersonationBlocked, Status: http.StatusForbidden, Message: "operation not permitted while impersonating"},
		{Err: domain.ErrPermissionDenied, Status: http.StatusForbidden, Message: "insufficient permissions"},
		{Err: domain.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"},
		{Err: domain.ErrTokenInvalid, Status: http.StatusUnauthorized, Message: "token invalid"},
		{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "conflict"},
	}, http.StatusInternalServerError, "request failed")
}

func ceilSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}
