// Package auth provides the request actor and the ownership rules applied to servers.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const actorContextKey contextKey = "actor"

// =============================================================================
// Types
// =============================================================================

// Role distinguishes customers from panel operators.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a header value to a Role. Anything unrecognized is a customer.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleCustomer
}

// Actor is the user on whose behalf an operation runs.
type Actor struct {
	// UserID is the opaque account id from the X-User-ID header.
	UserID string

	Role Role

	// Authenticated is false when no user id was supplied.
	Authenticated bool
}

// System is the actor used for internal callbacks (provisioning confirmation,
// scheduled settles). It has admin rights.
var System = Actor{UserID: "system", Role: RoleAdmin, Authenticated: true}

// NewActor builds an authenticated actor.
func NewActor(userID string, role Role) Actor {
	return Actor{UserID: userID, Role: role, Authenticated: userID != ""}
}

// IsAdmin reports whether the actor may act on any user's servers.
func (a Actor) IsAdmin() bool {
	return a.Authenticated && a.Role == RoleAdmin
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderUserID carries the authenticated user's id.
	HeaderUserID = "X-User-ID"

	// HeaderUserRole carries "admin" for operators.
	HeaderUserRole = "X-User-Role"

	// HeaderPanelSecret carries the shared secret set by the fronting gateway.
	HeaderPanelSecret = "X-Panel-Secret"
)

// =============================================================================
// Context Extraction
// =============================================================================

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// ExtractFromRequest reads the actor from HTTP request headers.
func ExtractFromRequest(r *http.Request) Actor {
	return ExtractFromHeaders(r.Header)
}

// ExtractFromHeaders reads the actor from headers. A missing or blank user id
// yields an unauthenticated actor.
func ExtractFromHeaders(headers HeaderGetter) Actor {
	userID := strings.TrimSpace(headers.Get(HeaderUserID))
	if userID == "" {
		return Actor{}
	}
	return NewActor(userID, ParseRole(headers.Get(HeaderUserRole)))
}

// =============================================================================
// Context Storage
// =============================================================================

// WithActor stores the actor in the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// FromContext retrieves the actor from the request context.
// If none is found, returns an unauthenticated actor.
func FromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorContextKey).(Actor); ok {
		return actor
	}
	return Actor{}
}

// MapHeaderGetter wraps a map to implement HeaderGetter.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
