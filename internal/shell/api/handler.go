// Package api provides HTTP handlers for the panel API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/panel/internal/core/auth"
	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
	"github.com/artpar/panel/internal/core/validation"
	"github.com/artpar/panel/internal/shell/allocation"
	apimw "github.com/artpar/panel/internal/shell/api/middleware"
	"github.com/artpar/panel/internal/shell/api/openapi"
	"github.com/artpar/panel/internal/shell/billing"
	"github.com/artpar/panel/internal/shell/lifecycle"
	"github.com/artpar/panel/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
)

// =============================================================================
// Handler
// =============================================================================

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handler dispatches to.
type Deps struct {
	Store      store.Store
	Lifecycle  *lifecycle.Service
	Allocation *allocation.Service
	Quoter     *billing.Quoter
	Pinger     Pinger // optional; /ready skips the database check without it
}

// Config configures the handler.
type Config struct {
	// SharedSecret, when set, is required in X-Panel-Secret.
	SharedSecret string
	Version      string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	deps    Deps
	config  Config
	logger  *slog.Logger
	openapi *openapi.Generator
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, config Config, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	h := &Handler{
		deps:    deps,
		config:  config,
		logger:  l.With("component", "api"),
		openapi: openapi.NewGenerator(openapi.WithVersion(config.Version)),
	}
	h.openapi.Register(apiRoutes()...)
	return h
}

// serverAction is a lifecycle operation addressed by server id.
type serverAction func(s *lifecycle.Service, ctx context.Context, id string, actor auth.Actor) (lifecycle.Result, error)

var overrides = map[string]serverAction{
	"provisioned": (*lifecycle.Service).ConfirmProvisioned,
	"suspend":     (*lifecycle.Service).Suspend,
	"unsuspend":   (*lifecycle.Service).Unsuspend,
	"recover":     (*lifecycle.Service).Recover,
	"fail":        (*lifecycle.Service).MarkError,
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)
	r.Use(h.logRequests)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.openapi.Handler())

	authMW := apimw.NewAuthMiddleware(apimw.AuthConfig{
		SharedSecret: h.config.SharedSecret,
		Logger:       h.logger,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.Handler)

		// Catalog browsing and quotes are open to anonymous visitors.
		r.Get("/plans", h.handleListPlans)
		r.Get("/plans/{id}/quotes", h.handleListQuotes)
		r.Post("/quotes", h.handleQuote)
		r.Get("/catalog/os-templates", h.handleListOSTemplates)
		r.Get("/catalog/datacenters", h.handleListDatacenters)

		r.Route("/servers", func(r chi.Router) {
			r.Use(apimw.RequireAuth(h.logger))

			r.Post("/", h.handleAllocateServer)
			r.Get("/", h.handleListServers)
			r.Get("/{id}", h.handleGetServer)
			r.Delete("/{id}", h.handleDeleteServer)
			r.Put("/{id}/credentials", h.handleUpdateCredentials)
			r.Get("/{id}/activity", h.handleListActivity)

			for _, a := range domain.AllActions {
				r.Post("/{id}/"+string(a), h.handlePowerAction(a))
			}
			for name, op := range overrides {
				r.Post("/{id}/"+name, h.handleOverride(op))
			}
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if h.deps.Pinger != nil {
		if err := h.deps.Pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			checks["database"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Catalog Handlers
// =============================================================================

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.deps.Store.ListPlans(r.Context())
	if err != nil {
		h.writeServiceError(w, store.ToDomain(err))
		return
	}

	resp := ListPlansResponse{Plans: make([]PlanResponse, 0, len(plans))}
	for _, p := range plans {
		if p.Active && p.Visible {
			resp.Plans = append(resp.Plans, planToResponse(p))
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListOSTemplates(w http.ResponseWriter, r *http.Request) {
	var (
		templates []domain.OSTemplate
		err       error
	)
	if planID := r.URL.Query().Get("plan_id"); planID != "" {
		templates, err = h.deps.Allocation.AvailableOSTemplates(r.Context(), planID)
	} else {
		templates, err = h.deps.Store.ListOSTemplates(r.Context(), "")
		err = store.ToDomain(err)
		templates = lo.Filter(templates, func(t domain.OSTemplate, _ int) bool { return t.Active })
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListOSTemplatesResponse{OSTemplates: make([]OSTemplateResponse, 0, len(templates))}
	for _, t := range templates {
		resp.OSTemplates = append(resp.OSTemplates, OSTemplateResponse{
			Name:     t.Name,
			Family:   string(t.Family),
			MinRAMGB: t.MinRAMGB,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListDatacenters(w http.ResponseWriter, r *http.Request) {
	dcs, err := h.deps.Store.ListDatacenters(r.Context())
	if err != nil {
		h.writeServiceError(w, store.ToDomain(err))
		return
	}

	resp := ListDatacentersResponse{Datacenters: make([]DatacenterResponse, 0, len(dcs))}
	for _, dc := range dcs {
		if dc.Active {
			resp.Datacenters = append(resp.Datacenters, DatacenterResponse{Name: dc.Name, Code: dc.Code, Country: dc.Country})
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Quote Handlers
// =============================================================================

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.PlanID) == "" {
		h.writeServiceError(w, &validation.FieldError{Field: "plan_id", Reason: "plan_id is required"})
		return
	}
	period, err := pricing.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		h.writeServiceError(w, &validation.FieldError{Field: "billing_period", Reason: err.Error()})
		return
	}

	breakdown, err := h.deps.Quoter.Quote(r.Context(), req.PlanID, period, req.PromoCode)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidPromoCode) || req.StrictPromo {
			h.writeServiceError(w, err)
			return
		}
	}

	resp := quoteToResponse(breakdown)
	if err != nil {
		resp.PromoError = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.deps.Quoter.QuoteAll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListQuotesResponse{Quotes: make([]QuoteResponse, 0, len(quotes))}
	for _, q := range quotes {
		resp.Quotes = append(resp.Quotes, quoteToResponse(q))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Server Handlers
// =============================================================================

func (h *Handler) handleAllocateServer(w http.ResponseWriter, r *http.Request) {
	var req AllocateServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	allocated, err := h.deps.Allocation.AllocateServer(r.Context(), auth.FromContext(r.Context()), validation.AllocationInput{
		UserID:      req.UserID,
		PlanID:      req.PlanID,
		Hostname:    req.Hostname,
		IPAddress:   req.IPAddress,
		IPv6Address: req.IPv6Address,
		Location:    req.Location,
		OSTemplate:  req.OSTemplate,
		Username:    req.Username,
		Password:    req.Password,
		RDPPort:     req.RDPPort,
		SSHPort:     req.SSHPort,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, AllocateServerResponse{
		Server:   serverToResponse(allocated.Server),
		Warnings: allocated.Warnings,
	})
}

func (h *Handler) handleListServers(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.listOptions(w, r)
	if !ok {
		return
	}

	servers, total, err := h.deps.Lifecycle.List(r.Context(), auth.FromContext(r.Context()), r.URL.Query().Get("user_id"), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListServersResponse{
		Servers: make([]ServerResponse, 0, len(servers)),
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	for i := range servers {
		resp.Servers = append(resp.Servers, serverToResponse(&servers[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetServer(w http.ResponseWriter, r *http.Request) {
	server, err := h.deps.Lifecycle.Get(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, serverToResponse(server))
}

func (h *Handler) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Lifecycle.Delete(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
	h.writeResult(w, result, err)
}

func (h *Handler) handleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req UpdateCredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.deps.Lifecycle.UpdateCredentials(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()), req.Username, req.Password)
	h.writeResult(w, result, err)
}

func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.listOptions(w, r)
	if !ok {
		return
	}

	entries, err := h.deps.Lifecycle.Activity(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := ListActivityResponse{Activity: make([]ActivityResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Activity = append(resp.Activity, activityToResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePowerAction(action domain.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.deps.Lifecycle.PerformAction(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()), action)
		h.writeResult(w, result, err)
	}
}

func (h *Handler) handleOverride(op serverAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := op(h.deps.Lifecycle, r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
		h.writeResult(w, result, err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "invalid_json", "")
		return false
	}
	return true
}

func (h *Handler) listOptions(w http.ResponseWriter, r *http.Request) (store.ListOptions, bool) {
	opts := store.DefaultListOptions()
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusUnprocessableEntity, p.name+" must be a non-negative integer", "validation_error", p.name)
			return store.ListOptions{}, false
		}
		*p.dst = n
	}
	return opts.Normalize(), true
}

func (h *Handler) writeResult(w http.ResponseWriter, result lifecycle.Result, err error) {
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ActionResponse{
		Server:   serverToResponse(result.Server),
		Changed:  result.Changed,
		Warnings: result.Warnings,
	})
}

// writeServiceError maps a domain error kind to a status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var fe *validation.FieldError
	switch {
	case errors.As(err, &fe):
		h.writeError(w, http.StatusUnprocessableEntity, fe.Error(), "validation_error", fe.Field)
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "validation_error", "")
	case errors.Is(err, domain.ErrInvalidPromoCode):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_promo_code", "promo_code")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "not_found", "")
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error(), "unauthorized", "")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition", "")
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error(), "conflict", "")
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "temporary failure, try again", "persistence_error", "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code, field string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
		Field: field,
	})
}
