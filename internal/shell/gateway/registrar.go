package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/artpar/panel/internal/core/auth"
)

const (
	upstreamName = "panel-api"
	routeName    = "panel-api"
)

// RegistrarConfig describes how the gateway should reach the panel.
type RegistrarConfig struct {
	GatewayURL string
	APIKey     string

	// PanelURL is the address the gateway uses to reach this process.
	PanelURL string

	// SharedSecret is injected as X-Panel-Secret on every forwarded request.
	SharedSecret string

	// RoleExpr is a gateway expression yielding the caller's role, e.g.
	// `planID == "operator" ? "admin" : "user"`. Empty skips the header.
	RoleExpr string
}

// Registrar keeps the panel's upstream and route registered with the gateway.
type Registrar struct {
	client *Client
	config RegistrarConfig
	logger *slog.Logger
}

// NewRegistrar creates a registrar.
func NewRegistrar(cfg RegistrarConfig, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		client: NewClient(Config{BaseURL: cfg.GatewayURL, APIKey: cfg.APIKey}, logger),
		config: cfg,
		logger: logger,
	}
}

// Register upserts the panel upstream and the /api/ route. It is idempotent.
func (r *Registrar) Register(ctx context.Context) error {
	if r.config.PanelURL == "" {
		return errors.New("panel URL not configured")
	}

	upstreamID, err := r.client.EnsureUpstream(ctx, Upstream{
		Name:            upstreamName,
		BaseURL:         r.config.PanelURL,
		HealthCheckPath: "/health",
	})
	if err != nil {
		return fmt.Errorf("register upstream: %w", err)
	}

	if err := r.client.EnsureRoute(ctx, Route{
		Name:             routeName,
		PathPattern:      "/api/*",
		MatchType:        "prefix",
		UpstreamID:       upstreamID,
		Priority:         50,
		Enabled:          true,
		RequestTransform: r.transform(),
	}); err != nil {
		return fmt.Errorf("register route: %w", err)
	}

	r.logger.Info("registered with gateway",
		"gateway_url", r.config.GatewayURL,
		"upstream_id", upstreamID,
	)
	return nil
}

// transform builds the header injection. Caller-supplied identity headers
// are stripped first so only the gateway can set them.
func (r *Registrar) transform() *RequestTransform {
	t := &RequestTransform{
		SetHeaders: map[string]string{
			auth.HeaderUserID: "userID",
		},
		DeleteHeaders: []string{auth.HeaderUserID, auth.HeaderUserRole, auth.HeaderPanelSecret},
	}
	if r.config.RoleExpr != "" {
		t.SetHeaders[auth.HeaderUserRole] = r.config.RoleExpr
	}
	if r.config.SharedSecret != "" {
		t.SetHeaders[auth.HeaderPanelSecret] = strconv.Quote(r.config.SharedSecret)
	}
	return t
}
