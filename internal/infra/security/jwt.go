package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

const stepUpTokenType = "2fa_pending"

// TokenManagerConfig holds the signing material and lifetimes for the
// three token families. Each family has its own key so a leaked step-up
// secret cannot mint sessions.
type TokenManagerConfig struct {
	Issuer        string
	Audience      string
	AccessSecret  []byte
	RefreshSecret []byte
	StepUpSecret  []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	StepUpTTL     time.Duration
}

// TokenManager issues and verifies the HS256-signed access, refresh, and
// pending step-up tokens.
type TokenManager struct {
	cfg TokenManagerConfig
	now func() time.Time
}

// NewTokenManager validates the configuration and constructs a manager.
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("token issuer is required")
	}
	if cfg.Audience == "" {
		cfg.Audience = cfg.Issuer
	}
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 || len(cfg.StepUpSecret) < 32 {
		return nil, fmt.Errorf("token secrets must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.StepUpTTL <= 0 {
		cfg.StepUpTTL = 5 * time.Minute
	}

	return &TokenManager{cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the internal clock, used in tests.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// ImpersonationClaims is embedded in an access token minted for an
// administrator acting as another user. StartedAt drives the server-side
// timeout check on every request.
type ImpersonationClaims struct {
	AdminID    string `json:"admin_id"`
	AdminEmail string `json:"admin_email,omitempty"`
	StartedAt  int64  `json:"started_at"`
}

// AccessTokenClaims augments registered claims with identity context.
type AccessTokenClaims struct {
	UserID        string               `json:"uid"`
	Email         string               `json:"email,omitempty"`
	Roles         []string             `json:"roles,omitempty"`
	Impersonation *ImpersonationClaims `json:"act,omitempty"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carries only the subject and jti.
type RefreshTokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

type stepUpClaims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a short-lived access token for the user.
func (m *TokenManager) IssueAccessToken(user domain.User, roles []string) (string, *AccessTokenClaims, error) {
	if user.ID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}

	now := m.now().UTC()
	claims := &AccessTokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}

	return signed, claims, nil
}

// IssueImpersonatedAccessToken signs an access token carrying the target
// user's identity plus the acting administrator's context. The token's
// lifetime is capped by the remaining impersonation window so it cannot
// outlive the timeout.
func (m *TokenManager) IssueImpersonatedAccessToken(target domain.User, roles []string, imp domain.ImpersonationContext, timeout time.Duration) (string, *AccessTokenClaims, error) {
	if target.ID == "" {
		return "", nil, fmt.Errorf("target user id is required")
	}
	if imp.AdminID == "" {
		return "", nil, fmt.Errorf("admin id is required")
	}

	now := m.now().UTC()
	ttl := m.cfg.AccessTTL
	if remaining := imp.StartedAt.Add(timeout).Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return "", nil, domain.ErrTokenExpired
	}

	claims := &AccessTokenClaims{
		UserID: target.ID,
		Email:  target.Email,
		Roles:  roles,
		Impersonation: &ImpersonationClaims{
			AdminID:    imp.AdminID,
			AdminEmail: imp.AdminEmail,
			StartedAt:  imp.StartedAt.UTC().Unix(),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   target.ID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign impersonated access token: %w", err)
	}

	return signed, claims, nil
}

// ParseAccessToken validates signature, issuer, audience, and expiry.
func (m *TokenManager) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if err := m.parse(token, claims, m.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// IssueRefreshToken signs a longer-lived refresh token with its own key.
func (m *TokenManager) IssueRefreshToken(userID string) (string, *RefreshTokenClaims, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}

	now := m.now().UTC()
	claims := &RefreshTokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, claims, nil
}

// ParseRefreshToken validates a refresh token and returns its claims.
func (m *TokenManager) ParseRefreshToken(token string) (*RefreshTokenClaims, error) {
	claims := &RefreshTokenClaims{}
	if err := m.parse(token, claims, m.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

// IssueStepUpToken signs a minutes-scale pending token binding a login
// attempt to its second factor. The claim set carries only the user id and
// a fixed type tag; no email or roles, to minimize exposure if leaked.
func (m *TokenManager) IssueStepUpToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := m.now().UTC()
	claims := &stepUpClaims{
		UserID:    userID,
		TokenType: stepUpTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.StepUpTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.StepUpSecret)
	if err != nil {
		return "", fmt.Errorf("sign step-up token: %w", err)
	}

	return signed, nil
}

// ParseStepUpToken validates a pending step-up token and returns the user
// id it was issued for.
func (m *TokenManager) ParseStepUpToken(token string) (string, error) {
	claims := &stepUpClaims{}
	if err := m.parse(token, claims, m.cfg.StepUpSecret); err != nil {
		return "", err
	}
	if claims.TokenType != stepUpTokenType || strings.TrimSpace(claims.UserID) == "" {
		return "", domain.ErrTokenInvalid
	}
	return claims.UserID, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims, secret []byte) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrTokenExpired
		}
		return domain.ErrTokenInvalid
	}

	if parsed == nil || !parsed.Valid {
		return domain.ErrTokenInvalid
	}

	return nil
}
