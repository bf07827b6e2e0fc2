package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// CSRFOptions configures the double-submit guard.
type CSRFOptions struct {
	// CookieName is the client-readable cookie carrying the token.
	CookieName string
	// HeaderName is the request header that must echo the cookie value.
	HeaderName string
	// ServiceHeader, when present on a request, skips validation entirely.
	// The credential it carries is authenticated elsewhere.
	ServiceHeader string
	// AllowPaths are exact pre-authentication paths exempt from validation.
	AllowPaths []string
	// CookieSecure toggles the Secure flag on issued cookies.
	CookieSecure bool
	// CookieMaxAge bounds the cookie lifetime. Zero means session cookie.
	CookieMaxAge time.Duration
}

func (o CSRFOptions) withDefaults() CSRFOptions {
	if o.CookieName == "" {
		o.CookieName = "csrf_token"
	}
	if o.HeaderName == "" {
		o.HeaderName = "X-CSRF-Token"
	}
	return o
}

// CSRFGuard enforces double-submit CSRF validation on mutating requests.
// Repeated failures from one client trip a dedicated counter; once tripped,
// requests are refused with a retry hint before any comparison runs.
type CSRFGuard struct {
	opts     CSRFOptions
	failures *usecase.RateLimiter
	audit    port.AuditPublisher
	logger   *zap.Logger
	allowed  map[string]bool
}

// NewCSRFGuard builds the guard. The failure limiter and audit publisher
// are optional; without a limiter failures are unbounded, without a
// publisher rejections are only logged.
func NewCSRFGuard(opts CSRFOptions, failures *usecase.RateLimiter, audit port.AuditPublisher, logger *zap.Logger) *CSRFGuard {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = opts.withDefaults()
	allowed := make(map[string]bool, len(opts.AllowPaths))
	for _, path := range opts.AllowPaths {
		allowed[path] = true
	}

	return &CSRFGuard{
		opts:     opts,
		failures: failures,
		audit:    audit,
		logger:   logger,
		allowed:  allowed,
	}
}

// IssueCookie mints a fresh token and sets it as a script-readable cookie.
// The token is also returned so handlers can include it in a response body.
func (g *CSRFGuard) IssueCookie(c *gin.Context) (string, error) {
	token, err := security.GenerateCSRFToken()
	if err != nil {
		return "", err
	}

	maxAge := 0
	if g.opts.CookieMaxAge > 0 {
		maxAge = int(g.opts.CookieMaxAge.Seconds())
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   g.opts.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})

	return token, nil
}

// Validate returns the middleware enforcing the double-submit check on
// every mutating request.
func (g *CSRFGuard) Validate() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if g.allowed[c.Request.URL.Path] {
			c.Next()
			return
		}

		if g.opts.ServiceHeader != "" && c.GetHeader(g.opts.ServiceHeader) != "" {
			c.Next()
			return
		}

		identifier := c.ClientIP()

		// A client past the failure threshold is refused before any
		// token comparison happens.
		if g.failures != nil {
			res := g.failures.Peek(c.Request.Context(), csrfFailureKey(identifier))
			if res.Remaining == 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(res)))
				c.AbortWithStatusJSON(http.StatusTooManyRequests,
					newErrorResponse(c, "too many csrf failures"))
				return
			}
		}

		cookieToken, _ := c.Cookie(g.opts.CookieName)
		headerToken := c.GetHeader(g.opts.HeaderName)

		if security.CSRFTokensMatch(cookieToken, headerToken) {
			c.Next()
			return
		}

		g.recordFailure(c, identifier)
		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "csrf validation failed"))
	}
}

func (g *CSRFGuard) recordFailure(c *gin.Context, identifier string) {
	ctx := c.Request.Context()

	if g.failures != nil {
		g.failures.Check(ctx, csrfFailureKey(identifier))
	}

	g.logger.Warn("CSRF validation failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)

	if g.audit == nil {
		return
	}

	event := domain.AuditEvent{
		Action:    domain.AuditCSRFRejected,
		Category:  domain.AuditCategorySecurity,
		IP:        identifier,
		UserAgent: c.Request.UserAgent(),
		Metadata: map[string]any{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		},
		OccurredAt: time.Now().UTC(),
	}
	if err := g.audit.Publish(ctx, event); err != nil {
		g.logger.Warn("failed to publish audit event",
			zap.String("action", string(event.Action)), zap.Error(err))
	}
}

func csrfFailureKey(identifier string) string {
	return "csrf:" + identifier
}
