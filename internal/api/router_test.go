package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/labelscan/internal/api"
	mw "github.com/kiranshivaraju/labelscan/internal/api/middleware"
	"github.com/kiranshivaraju/labelscan/internal/auth"
	"github.com/kiranshivaraju/labelscan/internal/cache"
	"github.com/kiranshivaraju/labelscan/internal/metrics"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type tokenVerifier struct{ tokens *auth.Tokens }

func (v tokenVerifier) Verify(raw string) (auth.Identity, error) { return v.tokens.Parse(raw) }

// --- router tests ---

func newTestRouter(tokens *auth.Tokens) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(tokenVerifier{tokens}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		MetricsHandler: metrics.Handler(),
		ListScans: func(w http.ResponseWriter, r *http.Request) {
			id, _ := mw.GetUserID(r)
			w.Write([]byte(id.String()))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(auth.NewTokens(testSecret, time.Hour))

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	metrics.Register()
	router := newTestRouter(auth.NewTokens(testSecret, time.Hour))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "labelscan_scans_total")
}

func TestRouter_AuthEndpoints_Public(t *testing.T) {
	router := newTestRouter(auth.NewTokens(testSecret, time.Hour))

	for _, path := range []string{"/api/v1/auth/signup", "/api/v1/auth/login"} {
		req := httptest.NewRequest("POST", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		// Unwired handlers answer 501, which proves no auth was required.
		assert.Equal(t, http.StatusNotImplemented, w.Code, path)
	}
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(auth.NewTokens(testSecret, time.Hour))

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/scans"},
		{"GET", "/api/v1/scans"},
		{"DELETE", "/api/v1/scans"},
		{"DELETE", "/api/v1/scans/" + uuid.NewString()},
		{"GET", "/api/v1/scans/ws"},
		{"GET", "/api/v1/ingredients/paraben"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ProtectedEndpoint_WithToken(t *testing.T) {
	tokens := auth.NewTokens(testSecret, time.Hour)
	router := newTestRouter(tokens)
	userID := uuid.New()
	raw, _, err := tokens.Issue(userID, "ada@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/scans", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(auth.NewTokens(testSecret, time.Hour))

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
