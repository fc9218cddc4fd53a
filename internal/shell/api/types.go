package api

import (
	"time"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Request Types
// =============================================================================

// AllocateServerRequest is the request body for allocating a server.
// UserID may only differ from the caller for admins.
type AllocateServerRequest struct {
	UserID      string `json:"user_id,omitempty"`
	PlanID      string `json:"plan_id"`
	Hostname    string `json:"hostname"`
	IPAddress   string `json:"ip_address"`
	IPv6Address string `json:"ipv6_address,omitempty"`
	Location    string `json:"location"`
	OSTemplate  string `json:"os_template"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password"`
	RDPPort     int    `json:"rdp_port,omitempty"`
	SSHPort     int    `json:"ssh_port,omitempty"`
}

// QuoteRequest is the request body for pricing a checkout.
type QuoteRequest struct {
	PlanID        string `json:"plan_id"`
	BillingPeriod string `json:"billing_period"`
	PromoCode     string `json:"promo_code,omitempty"`
	StrictPromo   bool   `json:"strict_promo,omitempty"`
}

// UpdateCredentialsRequest is the request body for replacing a server login.
type UpdateCredentialsRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// =============================================================================
// Response Types
// =============================================================================

// ServerResponse is the response for server operations. The password is never returned.
type ServerResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PlanID           string     `json:"plan_id"`
	Hostname         string     `json:"hostname"`
	IPAddress        string     `json:"ip_address"`
	IPv6Address      string     `json:"ipv6_address,omitempty"`
	Location         string     `json:"location"`
	OSTemplate       string     `json:"os_template"`
	Username         string     `json:"username"`
	RDPPort          int        `json:"rdp_port"`
	SSHPort          int        `json:"ssh_port"`
	Status           string     `json:"status"`
	AllowedActions   []string   `json:"allowed_actions"`
	LastStatusChange time.Time  `json:"last_status_change"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// ActionResponse is the response for power actions and status overrides.
type ActionResponse struct {
	Server   ServerResponse `json:"server"`
	Changed  bool           `json:"changed"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ListServersResponse is the response for listing servers.
type ListServersResponse struct {
	Servers []ServerResponse `json:"servers"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// PlanResponse is a plan as shown in the catalog.
type PlanResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Family       string `json:"family"`
	CPUCores     int    `json:"cpu_cores"`
	RAMGB        int    `json:"ram_gb"`
	StorageGB    int    `json:"storage_gb"`
	BandwidthTB  int    `json:"bandwidth_tb"`
	PriceMonthly int64  `json:"price_monthly_cents"`
}

// ListPlansResponse is the response for listing plans.
type ListPlansResponse struct {
	Plans []PlanResponse `json:"plans"`
}

// OSTemplateResponse is an installable OS option.
type OSTemplateResponse struct {
	Name     string `json:"name"`
	Family   string `json:"family"`
	MinRAMGB int    `json:"min_ram_gb"`
}

// ListOSTemplatesResponse is the response for listing OS options.
type ListOSTemplatesResponse struct {
	OSTemplates []OSTemplateResponse `json:"os_templates"`
}

// DatacenterResponse is a selectable location.
type DatacenterResponse struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Country string `json:"country"`
}

// ListDatacentersResponse is the response for listing locations.
type ListDatacentersResponse struct {
	Datacenters []DatacenterResponse `json:"datacenters"`
}

// QuoteResponse is an itemized price.
type QuoteResponse struct {
	PlanID               string          `json:"plan_id"`
	BillingPeriod        string          `json:"billing_period"`
	Months               int64           `json:"months"`
	Subtotal             int64           `json:"subtotal"`
	PeriodDiscountAmount int64           `json:"period_discount_amount"`
	PromoCode            string          `json:"promo_code,omitempty"`
	PromoDiscountPercent int64           `json:"promo_discount_percent"`
	PromoDiscountAmount  int64           `json:"promo_discount_amount"`
	Total                int64           `json:"total"`
	EffectiveMonthlyRate decimal.Decimal `json:"effective_monthly_rate"`
	PromoError           string          `json:"promo_error,omitempty"`
}

// ListQuotesResponse is the response for pricing a plan across periods.
type ListQuotesResponse struct {
	Quotes []QuoteResponse `json:"quotes"`
}

// ActivityResponse is one audit trail entry.
type ActivityResponse struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ListActivityResponse is the response for a server's audit trail.
type ListActivityResponse struct {
	Activity []ActivityResponse `json:"activity"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversions
// =============================================================================

func serverToResponse(s *domain.Server) ServerResponse {
	actions := domain.AllowedActions(s.Status)
	allowed := make([]string, 0, len(actions))
	for _, a := range actions {
		allowed = append(allowed, string(a))
	}
	return ServerResponse{
		ID:               s.ID,
		UserID:           s.UserID,
		PlanID:           s.PlanID,
		Hostname:         s.Hostname,
		IPAddress:        s.IPAddress,
		IPv6Address:      s.IPv6Address,
		Location:         s.Location,
		OSTemplate:       s.OSTemplate,
		Username:         s.Username,
		RDPPort:          s.RDPPort,
		SSHPort:          s.SSHPort,
		Status:           string(s.Status),
		AllowedActions:   allowed,
		LastStatusChange: s.LastStatusChange,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		DeletedAt:        s.DeletedAt,
	}
}

func planToResponse(p domain.Plan) PlanResponse {
	return PlanResponse{
		ID:           p.ID,
		Name:         p.Name,
		Family:       string(p.Family),
		CPUCores:     p.CPUCores,
		RAMGB:        p.RAMGB,
		StorageGB:    p.StorageGB,
		BandwidthTB:  p.BandwidthTB,
		PriceMonthly: p.PriceMonthly,
	}
}

func quoteToResponse(b pricing.Breakdown) QuoteResponse {
	return QuoteResponse{
		PlanID:               b.PlanID,
		BillingPeriod:        string(b.Period),
		Months:               b.Months,
		Subtotal:             b.Subtotal,
		PeriodDiscountAmount: b.PeriodDiscountAmount,
		PromoCode:            b.PromoCode,
		PromoDiscountPercent: b.PromoDiscountPercent,
		PromoDiscountAmount:  b.PromoDiscountAmount,
		Total:                b.Total,
		EffectiveMonthlyRate: b.EffectiveMonthlyRate,
	}
}

func activityToResponse(e domain.ActivityLogEntry) ActivityResponse {
	return ActivityResponse{
		ID:          e.ID,
		ActorID:     e.ActorID,
		Action:      e.Action,
		Description: e.Description,
		Before:      e.Before,
		After:       e.After,
		CreatedAt:   e.CreatedAt,
	}
}

// AllocateServerResponse is the response for a successful allocation.
type AllocateServerResponse struct {
	Server   ServerResponse `json:"server"`
	Warnings []string       `json:"warnings,omitempty"`
}
