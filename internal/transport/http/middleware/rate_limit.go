package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/usecase"
)

const (
	rateLimitProblemType  = "https://auth.social-platform.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// RateLimit returns a Gin middleware enforcing the limiter's fixed window
// for each identifier. Requests that cannot be attributed to an identifier
// pass through unthrottled, as do all requests when the limiter is nil.
func RateLimit(limiter *usecase.RateLimiter, name string, identifier IdentifierFunc) gin.HandlerFunc {
	if name == "" {
		name = "default"
	}
	if identifier == nil {
		identifier = ClientIPIdentifier()
	}

	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		id, ok := identifier(c)
		if !ok || id == "" {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", name, id)
		result := limiter.Check(c.Request.Context(), key)
		applyRateLimitHeaders(c, result)

		if !result.Allowed {
			respondRateLimited(c, result)
			return
		}

		c.Next()
	}
}

func applyRateLimitHeaders(c *gin.Context, res usecase.RateLimitResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		headers.Set("Retry-After", strconv.Itoa(retryAfterSeconds(res)))
	}
}

func respondRateLimited(c *gin.Context, res usecase.RateLimitResult) {
	retrySeconds := retryAfterSeconds(res)

	detail := fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	problem := ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}

func retryAfterSeconds(res usecase.RateLimitResult) int {
	seconds := int(math.Ceil(res.RetryAfter.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
