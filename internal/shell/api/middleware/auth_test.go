package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/panel/internal/core/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// testHandler echoes the actor found in the request context.
func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := auth.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"authenticated": actor.Authenticated,
			"user_id":       actor.UserID,
			"role":          string(actor.Role),
		})
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_ExtractsActor(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set(auth.HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "user-1", resp["user_id"])
	assert.Equal(t, "customer", resp["role"])
}

func TestAuthMiddleware_AdminRole(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderUserID, "ops")
	req.Header.Set(auth.HeaderUserRole, "Admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "admin", decode(t, rec)["role"])
}

func TestAuthMiddleware_NoHeaders(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])
}

func TestAuthMiddleware_SharedSecret(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{SharedSecret: "s3cret"}).Handler(testHandler())

	tests := []struct {
		name   string
		secret string
		want   int
	}{
		{"valid secret", "s3cret", http.StatusOK},
		{"wrong secret", "guess", http.StatusForbidden},
		{"missing secret", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(auth.HeaderUserID, "user-1")
			if tt.secret != "" {
				req.Header.Set(auth.HeaderPanelSecret, tt.secret)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "forbidden", decode(t, rec)["code"])
			}
		})
	}
}

// =============================================================================
// RequireAuth Tests
// =============================================================================

func TestRequireAuth(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(RequireAuth(nil)(testHandler()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode(t, rec)["code"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderUserID, "user-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
