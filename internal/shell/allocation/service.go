// Package allocation turns a validated request into a stored server record.
package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/panel/internal/core/auth"
	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/validation"
	"github.com/artpar/panel/internal/shell/activity"
	"github.com/artpar/panel/internal/shell/store"
)

// Config configures the allocation service.
type Config struct {
	// InstantProvisioning stores new servers as running. When false they stay
	// provisioning until the provisioning callback confirms them.
	InstantProvisioning bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{InstantProvisioning: true}
}

// Allocated is the outcome of a successful allocation.
type Allocated struct {
	Server   *domain.Server
	Plan     *domain.Plan
	Warnings []string
}

// Service allocates servers.
type Service struct {
	store    store.Store
	recorder *activity.Recorder
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an allocation service.
func NewService(s store.Store, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "allocation")

	return &Service{
		store:    s,
		recorder: activity.NewRecorder(s, logger),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// AllocateServer validates input against the catalog and stores a new server.
// Each successful call creates a new record; allocation is not idempotent.
//
// Validation failures return a *validation.FieldError and store nothing.
// A plan that cannot be resolved after validation is reported as a
// persistence error.
func (s *Service) AllocateServer(ctx context.Context, actor auth.Actor, input validation.AllocationInput) (*Allocated, error) {
	if input.UserID == "" {
		input.UserID = actor.UserID
	}
	if !auth.CanAllocateFor(actor, input.UserID) {
		return nil, fmt.Errorf("%w: cannot allocate a server for another user", domain.ErrUnauthorized)
	}

	ref, err := s.referenceData(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}

	alloc, err := validation.ValidateAllocation(input, ref)
	if err != nil {
		s.logger.Debug("allocation rejected", "user_id", input.UserID, "error", err)
		return nil, err
	}

	if ref.Plan == nil || !ref.Plan.Orderable() {
		return nil, fmt.Errorf("%w: plan not found: %s", domain.ErrPersistence, input.PlanID)
	}

	now := s.now()
	server := domain.NewServer(alloc.Spec, now)
	if s.config.InstantProvisioning {
		if err := server.Transition(domain.StatusRunning, now); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateServer(ctx, server); err != nil {
		s.logger.Error("failed to store server", "hostname", server.Hostname, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.logger.Info("server allocated",
		"server_id", server.ID,
		"user_id", server.UserID,
		"plan_id", server.PlanID,
		"location", server.Location,
		"status", server.Status,
	)

	entry := domain.NewServerActivity(actor.UserID, server.ID, domain.ActivityServerAllocated,
		fmt.Sprintf("allocated %s (%s, %s, %s)", server.Hostname, ref.Plan.Name, server.Location, server.OSTemplate), now)
	entry.After = activity.ServerSnapshot(server)

	allocated := &Allocated{Server: server, Plan: ref.Plan}
	if w := s.recorder.Record(ctx, entry); w != "" {
		allocated.Warnings = append(allocated.Warnings, w)
	}
	return allocated, nil
}

// referenceData loads the catalog for validation. A missing plan is not an
// error here so that field checks still report first.
func (s *Service) referenceData(ctx context.Context, planID string) (validation.ReferenceData, error) {
	var ref validation.ReferenceData

	if planID != "" {
		plan, err := s.store.GetPlan(ctx, planID)
		switch {
		case err == nil:
			ref.Plan = plan
		case store.IsNotFound(err):
		default:
			return ref, s.persistenceError("GetPlan", err)
		}
	}

	dcs, err := s.store.ListDatacenters(ctx)
	if err != nil {
		return ref, s.persistenceError("ListDatacenters", err)
	}
	ref.Datacenters = dcs

	templates, err := s.store.ListOSTemplates(ctx, "")
	if err != nil {
		return ref, s.persistenceError("ListOSTemplates", err)
	}
	ref.OSTemplates = templates

	return ref, nil
}

// AvailableOSTemplates lists the templates a plan can be allocated with.
func (s *Service) AvailableOSTemplates(ctx context.Context, planID string) ([]domain.OSTemplate, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: plan %s", domain.ErrNotFound, planID)
		}
		return nil, s.persistenceError("GetPlan", err)
	}

	templates, err := s.store.ListOSTemplates(ctx, plan.Family)
	if err != nil {
		return nil, s.persistenceError("ListOSTemplates", err)
	}
	return validation.AvailableOSTemplates(*plan, templates), nil
}

func (s *Service) persistenceError(op string, err error) error {
	s.logger.Error("store operation failed", "op", op, "error", err)
	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}
