package store

import (
	"context"
	"time"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for panel entities.
type Store interface {
	// Server operations
	CreateServer(ctx context.Context, server *domain.Server) error
	// GetServer returns soft-deleted servers too; callers check Deleted().
	GetServer(ctx context.Context, id string) (*domain.Server, error)
	ListServersByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Server, error)
	CountServersByUser(ctx context.Context, userID string) (int, error)
	ListServersByStatus(ctx context.Context, status domain.ServerStatus, opts ListOptions) ([]domain.Server, error)
	// UpdateServerStatus moves a server from one status to another only if the
	// row still carries the given status and version. It bumps the version.
	UpdateServerStatus(ctx context.Context, id string, from, to domain.ServerStatus, at time.Time, version int64) error
	UpdateServerCredentials(ctx context.Context, id, username, password string, at time.Time, version int64) error
	SoftDeleteServer(ctx context.Context, id string, at time.Time) error

	// Catalog operations
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	UpsertPlan(ctx context.Context, plan *domain.Plan) error
	ListDatacenters(ctx context.Context) ([]domain.Datacenter, error)
	UpsertDatacenter(ctx context.Context, dc *domain.Datacenter) error
	// ListOSTemplates filters by family; an empty family lists every template.
	ListOSTemplates(ctx context.Context, family domain.Family) ([]domain.OSTemplate, error)
	UpsertOSTemplate(ctx context.Context, tmpl *domain.OSTemplate) error
	GetPromoCode(ctx context.Context, code string) (*pricing.PromoCode, error)
	ListPromoCodes(ctx context.Context) ([]pricing.PromoCode, error)
	UpsertPromoCode(ctx context.Context, promo *pricing.PromoCode) error

	// Activity log operations (append-only)
	CreateActivityLog(ctx context.Context, entry *domain.ActivityLogEntry) error
	ListActivityLog(ctx context.Context, entityType, entityID string, opts ListOptions) ([]domain.ActivityLogEntry, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
