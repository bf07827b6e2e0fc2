package routes_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/infra/config"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	httproutes "github.com/arklim/social-platform-auth/internal/transport/http/routes"
)

func testDependencies(t *testing.T) httproutes.Dependencies {
	t.Helper()

	tokens, err := security.NewTokenManager(security.TokenManagerConfig{
		Issuer:        "auth-routes-test",
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		StepUpSecret:  []byte(strings.Repeat("s", 32)),
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	return httproutes.Dependencies{
		Config: &config.AppConfig{
			App: config.AppSettings{Env: "test"},
			PersistentLogin: config.PersistentLoginSettings{
				TTL: 720 * time.Hour,
			},
		},
		Logger: zap.NewNop(),
		Tokens: tokens,
	}
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(testDependencies(t))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(testDependencies(t))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(testDependencies(t))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/password/change",
		bytes.NewBufferString(`{"current_password":"a","new_password":"b"}`))
	req.Header.Set("Content-Type", "application/json")

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestGarbageBearerTokenRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(testDependencies(t))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
