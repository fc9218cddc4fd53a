package gateway

import (
	"context"
	"log/slog"
	"testing"

	"github.com/artpar/panel/internal/core/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrar_Register(t *testing.T) {
	g, srv := newFakeGateway(t)
	r := NewRegistrar(RegistrarConfig{
		GatewayURL:   srv.URL,
		APIKey:       "admin-key",
		PanelURL:     "http://panel:8080",
		SharedSecret: "s3cret",
		RoleExpr:     `planID == "ops" ? "admin" : "user"`,
	}, slog.Default())

	require.NoError(t, r.Register(context.Background()))

	require.Contains(t, g.upstreams, "up-panel-api")
	assert.Equal(t, "http://panel:8080", g.upstreams["up-panel-api"].BaseURL)
	assert.Equal(t, "/health", g.upstreams["up-panel-api"].HealthCheckPath)

	route, ok := g.routes["rt-panel-api"]
	require.True(t, ok)
	assert.Equal(t, "/api/*", route.PathPattern)
	assert.Equal(t, "up-panel-api", route.UpstreamID)
	assert.True(t, route.Enabled)
	require.NotNil(t, route.RequestTransform)
	assert.Equal(t, "userID", route.RequestTransform.SetHeaders[auth.HeaderUserID])
	assert.Equal(t, `"s3cret"`, route.RequestTransform.SetHeaders[auth.HeaderPanelSecret])
	assert.Contains(t, route.RequestTransform.SetHeaders[auth.HeaderUserRole], "planID")
	assert.ElementsMatch(t,
		[]string{auth.HeaderUserID, auth.HeaderUserRole, auth.HeaderPanelSecret},
		route.RequestTransform.DeleteHeaders)
}

func TestRegistrar_RegisterIsIdempotent(t *testing.T) {
	g, srv := newFakeGateway(t)
	r := NewRegistrar(RegistrarConfig{GatewayURL: srv.URL, APIKey: "admin-key", PanelURL: "http://panel:8080"}, nil)

	require.NoError(t, r.Register(context.Background()))
	require.NoError(t, r.Register(context.Background()))

	assert.Len(t, g.upstreams, 1)
	assert.Len(t, g.routes, 1)
	assert.Contains(t, g.calls, "PATCH /admin/upstreams/up-panel-api")
	assert.Contains(t, g.calls, "PATCH /admin/routes/rt-panel-api")
	assert.NotContains(t, g.routes["rt-panel-api"].RequestTransform.SetHeaders, auth.HeaderPanelSecret)
	assert.NotContains(t, g.routes["rt-panel-api"].RequestTransform.SetHeaders, auth.HeaderUserRole)
}

func TestRegistrar_RequiresPanelURL(t *testing.T) {
	r := NewRegistrar(RegistrarConfig{GatewayURL: "http://gw"}, nil)
	assert.Error(t, r.Register(context.Background()))
}
