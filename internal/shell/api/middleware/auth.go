// Package middleware provides HTTP middleware for the panel API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/artpar/panel/internal/core/auth"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// SharedSecret, when set, must match the X-Panel-Secret header on every
	// request. The fronting gateway injects it together with the identity headers.
	SharedSecret string

	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware extracts the actor from the identity headers and stores it
// in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates the middleware. A nil logger uses slog.Default().
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler checks the shared secret, then attaches the actor (possibly
// anonymous) to the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.SharedSecret != "" {
			got := r.Header.Get(auth.HeaderPanelSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(m.config.SharedSecret)) != 1 {
				m.config.Logger.Warn("invalid panel secret",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "invalid gateway secret", "forbidden")
				return
			}
		}

		actor := auth.ExtractFromRequest(r)
		r = r.WithContext(auth.WithActor(r.Context(), actor))

		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without an authenticated actor.
// Must be used after AuthMiddleware.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.FromContext(r.Context()).Authenticated {
				logger.Warn("unauthenticated request to protected endpoint",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, "authentication required", "unauthenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
