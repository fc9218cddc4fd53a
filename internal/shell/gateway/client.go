// Package gateway registers the panel with the API gateway that fronts it.
// The gateway authenticates callers and forwards their identity in headers;
// the panel only needs an upstream pointing at itself and a route that
// injects those headers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUnexpectedStatus is wrapped by every non-2xx admin API response.
var ErrUnexpectedStatus = errors.New("unexpected gateway status")

// Client talks to the gateway's admin API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL string // e.g. "http://localhost:8082"
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a gateway admin client. A zero timeout means 10s.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// =============================================================================
// Resources
// =============================================================================

// Upstream is a backend the gateway forwards to.
type Upstream struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	BaseURL         string `json:"base_url"`
	HealthCheckPath string `json:"health_check_path,omitempty"`
}

// RequestTransform rewrites requests before they reach the upstream.
// SetHeaders values are gateway expressions evaluated against the caller's
// auth context (userID, planID, keyID); literals must be quoted.
type RequestTransform struct {
	SetHeaders    map[string]string `json:"set_headers,omitempty"`
	DeleteHeaders []string          `json:"delete_headers,omitempty"`
}

// Route maps a path pattern to an upstream.
type Route struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	PathPattern      string            `json:"path_pattern"`
	MatchType        string            `json:"match_type"` // exact, prefix, regex
	UpstreamID       string            `json:"upstream_id"`
	Priority         int               `json:"priority,omitempty"`
	Enabled          bool              `json:"enabled"`
	RequestTransform *RequestTransform `json:"request_transform,omitempty"`
}

// resource is the JSON:API envelope the admin API wraps objects in.
type resource[T any] struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes T      `json:"attributes"`
}

type document[T any] struct {
	Data resource[T] `json:"data"`
}

type collection[T any] struct {
	Data []resource[T] `json:"data"`
}

// =============================================================================
// Operations
// =============================================================================

// FindUpstream returns the upstream with the given name, or nil.
func (c *Client) FindUpstream(ctx context.Context, name string) (*Upstream, error) {
	items, err := list[Upstream](ctx, c, "/admin/upstreams")
	if err != nil {
		return nil, err
	}
	for _, u := range items {
		if u.Attributes.Name == name {
			u.Attributes.ID = u.ID
			return &u.Attributes, nil
		}
	}
	return nil, nil
}

// FindRoute returns the route with the given name, or nil.
func (c *Client) FindRoute(ctx context.Context, name string) (*Route, error) {
	items, err := list[Route](ctx, c, "/admin/routes")
	if err != nil {
		return nil, err
	}
	for _, r := range items {
		if r.Attributes.Name == name {
			r.Attributes.ID = r.ID
			return &r.Attributes, nil
		}
	}
	return nil, nil
}

// EnsureUpstream creates the upstream or updates the one with the same name,
// returning its gateway id.
func (c *Client) EnsureUpstream(ctx context.Context, upstream Upstream) (string, error) {
	existing, err := c.FindUpstream(ctx, upstream.Name)
	if err != nil {
		return "", fmt.Errorf("find upstream: %w", err)
	}

	method, path := http.MethodPost, "/admin/upstreams"
	if existing != nil {
		method, path = http.MethodPatch, "/admin/upstreams/"+existing.ID
	}
	c.logger.Info("ensuring gateway upstream", "name", upstream.Name, "method", method)

	var out document[Upstream]
	if err := c.do(ctx, method, path, upstream, &out); err != nil {
		return "", fmt.Errorf("save upstream %s: %w", upstream.Name, err)
	}
	return out.Data.ID, nil
}

// EnsureRoute creates the route or updates the one with the same name.
func (c *Client) EnsureRoute(ctx context.Context, route Route) error {
	existing, err := c.FindRoute(ctx, route.Name)
	if err != nil {
		return fmt.Errorf("find route: %w", err)
	}

	method, path := http.MethodPost, "/admin/routes"
	if existing != nil {
		method, path = http.MethodPatch, "/admin/routes/"+existing.ID
	}
	c.logger.Info("ensuring gateway route", "name", route.Name, "method", method)

	if err := c.do(ctx, method, path, route, nil); err != nil {
		return fmt.Errorf("save route %s: %w", route.Name, err)
	}
	return nil
}

// =============================================================================
// Transport
// =============================================================================

func list[T any](ctx context.Context, c *Client, path string) ([]resource[T], error) {
	var out collection[T]
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
