package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	MinHostnameLength = 3
	DefaultRDPPort    = 3389
	DefaultSSHPort    = 22
)

var hostnameChars = regexp.MustCompile(`^[a-z0-9-]+$`)

// =============================================================================
// Errors
// =============================================================================

// FieldError names the first allocation field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return domain.ErrValidation
}

func fieldError(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// Input Types
// =============================================================================

// AllocationInput is a candidate server configuration as submitted by a caller.
type AllocationInput struct {
	UserID      string `json:"user_id" validate:"required"`
	PlanID      string `json:"plan_id" validate:"required"`
	Hostname    string `json:"hostname" validate:"required,min=3,max=63,hostname_label"`
	IPAddress   string `json:"ip_address" validate:"required,dotted_quad"`
	IPv6Address string `json:"ipv6_address,omitempty" validate:"omitempty,ipv6"`
	Location    string `json:"location" validate:"required"`
	OSTemplate  string `json:"os_template" validate:"required"`
	Username    string `json:"username,omitempty" validate:"max=64"`
	Password    string `json:"password" validate:"required,max=128"`
	RDPPort     int    `json:"rdp_port,omitempty" validate:"omitempty,min=1,max=65535"`
	SSHPort     int    `json:"ssh_port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// ReferenceData is the catalog an allocation is checked against.
// Plan may be nil when the requested plan could not be resolved; the OS
// template is then only checked for existence.
type ReferenceData struct {
	Plan        *domain.Plan
	Datacenters []domain.Datacenter
	OSTemplates []domain.OSTemplate
}

// Allocation is a validated request, normalized and with defaults applied.
type Allocation struct {
	Spec       domain.ServerSpec
	Datacenter domain.Datacenter
	Template   domain.OSTemplate
}

// =============================================================================
// Validator
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so callers can point at the offending form field.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("hostname_label", func(fl validator.FieldLevel) bool {
		return hostnameChars.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("dotted_quad", func(fl validator.FieldLevel) bool {
		return IsValidIPv4(fl.Field().String())
	})

	return v
}

// ValidateAllocation checks an allocation request. Shape checks run first in
// field order, then reference checks (location, OS template). The first
// violation is returned as a *FieldError; nothing is partially accepted.
func ValidateAllocation(input AllocationInput, ref ReferenceData) (Allocation, error) {
	input = normalize(input)

	if err := validate.Struct(input); err != nil {
		return Allocation{}, translate(err)
	}

	dc, ok := lo.Find(ref.Datacenters, func(d domain.Datacenter) bool {
		return d.Active && d.Matches(input.Location)
	})
	if !ok {
		return Allocation{}, fieldError("location", "unknown location %q", input.Location)
	}

	candidates := lo.Filter(ref.OSTemplates, func(t domain.OSTemplate, _ int) bool { return t.Active })
	if ref.Plan != nil {
		candidates = AvailableOSTemplates(*ref.Plan, ref.OSTemplates)
	}
	tmpl, ok := lo.Find(candidates, func(t domain.OSTemplate) bool {
		return strings.EqualFold(t.Name, input.OSTemplate)
	})
	if !ok {
		if ref.Plan != nil {
			return Allocation{}, fieldError("os_template", "%q is not available for plan %s", input.OSTemplate, ref.Plan.ID)
		}
		return Allocation{}, fieldError("os_template", "unknown OS template %q", input.OSTemplate)
	}

	username := input.Username
	if username == "" {
		username = domain.FamilyVPS.DefaultUsername()
		if ref.Plan != nil {
			username = ref.Plan.Family.DefaultUsername()
		}
	}

	return Allocation{
		Spec: domain.ServerSpec{
			UserID:      input.UserID,
			PlanID:      input.PlanID,
			Hostname:    input.Hostname,
			IPAddress:   input.IPAddress,
			IPv6Address: input.IPv6Address,
			Location:    dc.Name,
			OSTemplate:  tmpl.Name,
			Username:    username,
			Password:    input.Password,
			RDPPort:     lo.Ternary(input.RDPPort == 0, DefaultRDPPort, input.RDPPort),
			SSHPort:     lo.Ternary(input.SSHPort == 0, DefaultSSHPort, input.SSHPort),
		},
		Datacenter: dc,
		Template:   tmpl,
	}, nil
}

// normalize trims surrounding whitespace. Case is left alone so that
// "My-Server" is rejected rather than silently lowered.
func normalize(in AllocationInput) AllocationInput {
	in.UserID = strings.TrimSpace(in.UserID)
	in.PlanID = strings.TrimSpace(in.PlanID)
	in.Hostname = strings.TrimSpace(in.Hostname)
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.IPv6Address = strings.TrimSpace(in.IPv6Address)
	in.Location = strings.TrimSpace(in.Location)
	in.OSTemplate = strings.TrimSpace(in.OSTemplate)
	in.Username = strings.TrimSpace(in.Username)
	return in
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fieldError(field, "%s is required", field)
	case "min":
		if fe.Kind() == reflect.Int {
			return fieldError(field, "%s must be between 1 and 65535", field)
		}
		return fieldError(field, "%s must be at least %s characters", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Int {
			return fieldError(field, "%s must be between 1 and 65535", field)
		}
		return fieldError(field, "%s must be at most %s characters", field, fe.Param())
	case "hostname_label":
		return fieldError(field, "hostname may only contain lowercase letters, digits and hyphens")
	case "dotted_quad":
		return fieldError(field, "%q is not a valid IPv4 address", fe.Value())
	case "ipv6":
		return fieldError(field, "%q is not a valid IPv6 address", fe.Value())
	default:
		return fieldError(field, "%s failed %s validation", field, fe.Tag())
	}
}

// =============================================================================
// Field Checks
// =============================================================================

// IsValidIPv4 reports whether s is exactly four dot-separated decimal
// segments in 0-255 written in canonical form ("01" and "+1" are rejected).
func IsValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		if strconv.Itoa(n) != p {
			return false
		}
	}
	return true
}

// IsValidHostname reports whether s is a lowercase hostname label of at least 3 characters.
func IsValidHostname(s string) bool {
	return len(s) >= MinHostnameLength && hostnameChars.MatchString(s)
}

// AvailableOSTemplates returns the active templates matching the plan's family
// whose RAM requirement the plan satisfies.
func AvailableOSTemplates(plan domain.Plan, all []domain.OSTemplate) []domain.OSTemplate {
	return lo.Filter(all, func(t domain.OSTemplate, _ int) bool {
		return t.SupportsPlan(plan)
	})
}
