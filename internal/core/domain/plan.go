package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidFamily   = errors.New("unknown server family")
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrNegativeQuota   = errors.New("resource quantities must not be negative")
	ErrPlanIDRequired  = errors.New("plan id is required")
	ErrPlanNameMissing = errors.New("plan name is required")
)

// =============================================================================
// Server Family
// =============================================================================

// Family distinguishes Linux VPS plans from Windows RDP plans.
type Family string

const (
	FamilyVPS Family = "VPS"
	FamilyRDP Family = "RDP"
)

// ParseFamily accepts the family name in any case.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToUpper(strings.TrimSpace(s))) {
	case FamilyVPS:
		return FamilyVPS, nil
	case FamilyRDP:
		return FamilyRDP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFamily, s)
	}
}

// DefaultUsername is the login created on a fresh server of this family.
func (f Family) DefaultUsername() string {
	if f == FamilyRDP {
		return "Administrator"
	}
	return "root"
}

// =============================================================================
// Plan
// =============================================================================

// Plan is a priced bundle of resources. Prices are integer cents.
type Plan struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Family       Family    `json:"family" yaml:"family"`
	CPUCores     int       `json:"cpu_cores" yaml:"cpu_cores"`
	RAMGB        int       `json:"ram_gb" yaml:"ram_gb"`
	StorageGB    int       `json:"storage_gb" yaml:"storage_gb"`
	BandwidthTB  int       `json:"bandwidth_tb" yaml:"bandwidth_tb"`
	PriceMonthly int64     `json:"price_monthly_cents" yaml:"price_monthly_cents"`
	Active       bool      `json:"active" yaml:"active"`
	Visible      bool      `json:"visible" yaml:"visible"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the plan invariants: known family, non-negative price and quantities.
func (p Plan) Validate() error {
	if p.ID == "" {
		return ErrPlanIDRequired
	}
	if p.Name == "" {
		return ErrPlanNameMissing
	}
	if _, err := ParseFamily(string(p.Family)); err != nil {
		return err
	}
	if p.PriceMonthly < 0 {
		return ErrNegativePrice
	}
	if p.CPUCores < 0 || p.RAMGB < 0 || p.StorageGB < 0 || p.BandwidthTB < 0 {
		return ErrNegativeQuota
	}
	return nil
}

// Orderable reports whether new servers may be allocated on the plan.
func (p Plan) Orderable() bool {
	return p.Active
}

// =============================================================================
// Reference Data
// =============================================================================

// Datacenter is a location servers can be placed in.
type Datacenter struct {
	Name    string `json:"name" yaml:"name"`
	Code    string `json:"code" yaml:"code"`
	Country string `json:"country" yaml:"country"`
	Active  bool   `json:"active" yaml:"active"`
}

// Matches reports whether s names this datacenter by name or code.
func (d Datacenter) Matches(s string) bool {
	return strings.EqualFold(d.Name, s) || (d.Code != "" && strings.EqualFold(d.Code, s))
}

// OSTemplate is an installable operating system image.
// Windows images belong to the RDP family.
type OSTemplate struct {
	Name     string `json:"name" yaml:"name"`
	Family   Family `json:"family" yaml:"family"`
	MinRAMGB int    `json:"min_ram_gb" yaml:"min_ram_gb"`
	Active   bool   `json:"active" yaml:"active"`
}

// SupportsPlan reports whether the template may be installed on the plan.
func (t OSTemplate) SupportsPlan(p Plan) bool {
	return t.Active && t.Family == p.Family && t.MinRAMGB <= p.RAMGB
}
