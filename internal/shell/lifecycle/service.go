// Package lifecycle applies power actions and operator overrides to stored
// servers. Status writes are guarded by the server's version so concurrent
// actions on one server cannot interleave.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/panel/internal/core/auth"
	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/validation"
	"github.com/artpar/panel/internal/shell/activity"
	"github.com/artpar/panel/internal/shell/store"
	"github.com/artpar/panel/internal/shell/workers"
)

// Config configures the lifecycle service.
type Config struct {
	// RestartSettleDelay is how long a server stays restarting.
	// Default: 5 seconds.
	RestartSettleDelay time.Duration

	// ProvisioningTimeout marks servers stuck in provisioning as error during
	// sweeps. Zero disables the check.
	ProvisioningTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RestartSettleDelay:  5 * time.Second,
		ProvisioningTimeout: 30 * time.Minute,
	}
}

// Result describes the outcome of a lifecycle operation.
type Result struct {
	Server   *domain.Server
	Status   domain.ServerStatus
	Changed  bool
	Warnings []string
}

// Service runs lifecycle operations against the store.
type Service struct {
	store    store.Store
	recorder *activity.Recorder
	settler  *workers.Settler
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a lifecycle service. Call Stop to cancel pending settles.
func NewService(s store.Store, config Config, logger *slog.Logger) *Service {
	if config.RestartSettleDelay <= 0 {
		config.RestartSettleDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "lifecycle")

	return &Service{
		store:    s,
		recorder: activity.NewRecorder(s, logger),
		settler:  workers.NewSettler(logger),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Stop cancels pending settles and waits for running ones.
func (s *Service) Stop() {
	s.settler.Stop()
}

// =============================================================================
// Power Actions
// =============================================================================

// PerformAction runs start, stop or restart for the actor. Servers the actor
// cannot see are reported as not found. A no-op action returns Changed=false
// and writes nothing.
func (s *Service) PerformAction(ctx context.Context, serverID string, actor auth.Actor, action domain.Action) (Result, error) {
	server, err := s.load(ctx, serverID, actor, false)
	if err != nil {
		return Result{}, err
	}

	from := server.Status
	now := s.now()
	changed, err := server.Apply(action, now)
	if err != nil {
		return Result{Server: server, Status: from}, err
	}
	if !changed {
		return Result{Server: server, Status: from}, nil
	}

	if err := s.writeStatus(ctx, server, from); err != nil {
		return Result{}, err
	}

	s.logger.Info("server power action",
		"server_id", server.ID,
		"action", action,
		"from", from,
		"to", server.Status,
		"actor", actor.UserID,
	)

	entry := domain.NewServerActivity(actor.UserID, server.ID, domain.PowerActivity(action),
		fmt.Sprintf("%s %s (%s -> %s)", action, server.Hostname, from, server.Status), now)
	entry.Before = activity.StatusSnapshot(from)
	entry.After = activity.StatusSnapshot(server.Status)

	result := Result{Server: server, Status: server.Status, Changed: true}
	result.addWarning(s.recorder.Record(ctx, entry))

	if server.Status == domain.StatusRestarting {
		s.scheduleSettle(server.ID)
	}
	return result, nil
}

// scheduleSettle arranges for a restarting server to come back to running.
func (s *Service) scheduleSettle(serverID string) {
	s.settler.Schedule(serverID, s.config.RestartSettleDelay, func(ctx context.Context) {
		if _, err := s.settle(ctx, serverID); err != nil {
			s.logger.Warn("restart settle failed", "server_id", serverID, "error", err)
		}
	})
}

// settle moves a server from restarting to running if it is still restarting.
// It reports whether a write happened. The settle is not audited: the restart
// entry already covers it.
func (s *Service) settle(ctx context.Context, serverID string) (bool, error) {
	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, store.ToDomain(err)
	}
	if server.Deleted() || server.Status != domain.StatusRestarting {
		return false, nil
	}

	if err := server.Transition(domain.StatusRunning, s.now()); err != nil {
		return false, err
	}
	err = s.store.UpdateServerStatus(ctx, server.ID, domain.StatusRestarting, domain.StatusRunning, server.UpdatedAt, server.Version)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || store.IsNotFound(err) {
			s.logger.Debug("settle skipped, server changed meanwhile", "server_id", serverID)
			return false, nil
		}
		return false, store.ToDomain(err)
	}

	s.logger.Info("server restart settled", "server_id", serverID)
	return true, nil
}

// =============================================================================
// Operator Overrides
// =============================================================================

// ConfirmProvisioned moves a provisioning server to running. It is the
// callback for external provisioning.
func (s *Service) ConfirmProvisioned(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	return s.override(ctx, serverID, actor, domain.StatusRunning, domain.ActivityServerProvisioned)
}

// Suspend forces a server into suspended.
func (s *Service) Suspend(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	return s.override(ctx, serverID, actor, domain.StatusSuspended, domain.ActivityServerSuspended)
}

// Unsuspend returns a suspended server to stopped.
func (s *Service) Unsuspend(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	return s.override(ctx, serverID, actor, domain.StatusStopped, domain.ActivityServerUnsuspended)
}

// MarkError records a fault reported by infrastructure.
func (s *Service) MarkError(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	return s.override(ctx, serverID, actor, domain.StatusError, domain.ActivityServerFailed)
}

// Recover returns a server in error to stopped.
func (s *Service) Recover(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	return s.override(ctx, serverID, actor, domain.StatusStopped, domain.ActivityServerRecovered)
}

func (s *Service) override(ctx context.Context, serverID string, actor auth.Actor, to domain.ServerStatus, activityAction string) (Result, error) {
	if !auth.CanOverrideStatus(actor) {
		return Result{}, fmt.Errorf("%w: status overrides require an operator", domain.ErrUnauthorized)
	}

	server, err := s.load(ctx, serverID, actor, false)
	if err != nil {
		return Result{}, err
	}

	from := server.Status
	now := s.now()
	if err := server.Transition(to, now); err != nil {
		return Result{Server: server, Status: from}, err
	}
	if err := s.writeStatus(ctx, server, from); err != nil {
		return Result{}, err
	}
	s.settler.Cancel(server.ID)

	s.logger.Info("server status override",
		"server_id", server.ID,
		"from", from,
		"to", to,
		"actor", actor.UserID,
	)

	entry := domain.NewServerActivity(actor.UserID, server.ID, activityAction,
		fmt.Sprintf("%s: %s -> %s", server.Hostname, from, to), now)
	entry.Before = activity.StatusSnapshot(from)
	entry.After = activity.StatusSnapshot(to)

	result := Result{Server: server, Status: to, Changed: true}
	result.addWarning(s.recorder.Record(ctx, entry))
	return result, nil
}

// =============================================================================
// Record Management
// =============================================================================

// Delete soft-deletes a server and drops any pending settle.
func (s *Service) Delete(ctx context.Context, serverID string, actor auth.Actor) (Result, error) {
	server, err := s.load(ctx, serverID, actor, false)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	if err := s.store.SoftDeleteServer(ctx, server.ID, now); err != nil {
		return Result{}, s.persistenceError("SoftDeleteServer", server.ID, err)
	}
	s.settler.Cancel(server.ID)
	server.DeletedAt = &now
	server.Version++

	entry := domain.NewServerActivity(actor.UserID, server.ID, domain.ActivityServerDeleted,
		fmt.Sprintf("deleted %s", server.Hostname), now)
	entry.Before = activity.ServerSnapshot(server)

	result := Result{Server: server, Status: server.Status, Changed: true}
	result.addWarning(s.recorder.Record(ctx, entry))
	return result, nil
}

// UpdateCredentials replaces the login of a server. An empty username keeps
// the current one; the password is required.
func (s *Service) UpdateCredentials(ctx context.Context, serverID string, actor auth.Actor, username, password string) (Result, error) {
	username = strings.TrimSpace(username)
	if password == "" {
		return Result{}, &validation.FieldError{Field: "password", Reason: "password is required"}
	}
	if len(password) > 128 {
		return Result{}, &validation.FieldError{Field: "password", Reason: "password must be at most 128 characters"}
	}
	if len(username) > 64 {
		return Result{}, &validation.FieldError{Field: "username", Reason: "username must be at most 64 characters"}
	}

	server, err := s.load(ctx, serverID, actor, false)
	if err != nil {
		return Result{}, err
	}

	before := activity.ServerSnapshot(server)
	if username != "" {
		server.Username = username
	}
	server.Password = password

	now := s.now()
	if err := s.store.UpdateServerCredentials(ctx, server.ID, server.Username, server.Password, now, server.Version); err != nil {
		return Result{}, s.persistenceError("UpdateServerCredentials", server.ID, err)
	}
	server.Version++
	server.UpdatedAt = now

	entry := domain.NewServerActivity(actor.UserID, server.ID, domain.ActivityCredentialsChanged,
		fmt.Sprintf("credentials updated for %s", server.Hostname), now)
	entry.Before = before
	entry.After = activity.ServerSnapshot(server)

	result := Result{Server: server, Status: server.Status, Changed: true}
	result.addWarning(s.recorder.Record(ctx, entry))
	return result, nil
}

// Get returns a server visible to the actor.
func (s *Service) Get(ctx context.Context, serverID string, actor auth.Actor) (*domain.Server, error) {
	return s.load(ctx, serverID, actor, false)
}

// List returns one page of the live servers of userID and the number of live
// servers across all pages. An empty userID means the actor's own.
func (s *Service) List(ctx context.Context, actor auth.Actor, userID string, opts store.ListOptions) ([]domain.Server, int, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if !auth.CanListFor(actor, userID) {
		return nil, 0, fmt.Errorf("%w: cannot list servers of another user", domain.ErrUnauthorized)
	}

	servers, err := s.store.ListServersByUser(ctx, userID, opts)
	if err != nil {
		return nil, 0, s.persistenceError("ListServersByUser", userID, err)
	}
	total, err := s.store.CountServersByUser(ctx, userID)
	if err != nil {
		return nil, 0, s.persistenceError("CountServersByUser", userID, err)
	}
	return servers, total, nil
}

// Activity returns the audit trail of a server, oldest first. Operators can
// read the trail of deleted servers.
func (s *Service) Activity(ctx context.Context, serverID string, actor auth.Actor, opts store.ListOptions) ([]domain.ActivityLogEntry, error) {
	server, err := s.load(ctx, serverID, actor, actor.IsAdmin())
	if err != nil {
		return nil, err
	}

	entries, err := s.store.ListActivityLog(ctx, domain.EntityServer, server.ID, opts)
	if err != nil {
		return nil, s.persistenceError("ListActivityLog", server.ID, err)
	}
	return entries, nil
}

// =============================================================================
// Sweeps
// =============================================================================

// SweepStale settles restarts whose timer was lost (for example across a
// process restart) and fails servers stuck in provisioning. It reports how
// many servers changed.
func (s *Service) SweepStale(ctx context.Context, now time.Time) (int, error) {
	changed := 0

	restarting, err := s.store.ListServersByStatus(ctx, domain.StatusRestarting, store.ListOptions{Limit: 1000})
	if err != nil {
		return 0, s.persistenceError("ListServersByStatus", string(domain.StatusRestarting), err)
	}
	for _, server := range restarting {
		if now.Sub(server.LastStatusChange) < s.config.RestartSettleDelay {
			continue
		}
		ok, err := s.settle(ctx, server.ID)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}

	if s.config.ProvisioningTimeout <= 0 {
		return changed, nil
	}

	provisioning, err := s.store.ListServersByStatus(ctx, domain.StatusProvisioning, store.ListOptions{Limit: 1000})
	if err != nil {
		return changed, s.persistenceError("ListServersByStatus", string(domain.StatusProvisioning), err)
	}
	for _, server := range provisioning {
		if now.Sub(server.LastStatusChange) < s.config.ProvisioningTimeout {
			continue
		}
		_, err := s.MarkError(ctx, server.ID, auth.System)
		switch {
		case err == nil:
			changed++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
			// changed underneath the sweep
		default:
			return changed, err
		}
	}

	return changed, nil
}

// =============================================================================
// Helpers
// =============================================================================

// load fetches a server and applies visibility rules: deleted servers and
// servers the actor may not manage are reported as not found.
func (s *Service) load(ctx context.Context, serverID string, actor auth.Actor, includeDeleted bool) (*domain.Server, error) {
	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: server %s", domain.ErrNotFound, serverID)
		}
		return nil, s.persistenceError("GetServer", serverID, err)
	}
	if server.Deleted() && !includeDeleted {
		return nil, fmt.Errorf("%w: server %s", domain.ErrNotFound, serverID)
	}
	if !auth.CanManageServer(actor, *server) {
		return nil, fmt.Errorf("%w: server %s", domain.ErrNotFound, serverID)
	}
	return server, nil
}

// writeStatus persists server.Status guarded by the version that was read,
// then advances the in-memory version.
func (s *Service) writeStatus(ctx context.Context, server *domain.Server, from domain.ServerStatus) error {
	err := s.store.UpdateServerStatus(ctx, server.ID, from, server.Status, server.LastStatusChange, server.Version)
	if err != nil {
		return s.persistenceError("UpdateServerStatus", server.ID, err)
	}
	server.Version++
	return nil
}

func (s *Service) persistenceError(op, id string, err error) error {
	mapped := store.ToDomain(err)
	if errors.Is(mapped, domain.ErrPersistence) {
		s.logger.Error("store operation failed", "op", op, "id", id, "error", err)
	}
	return mapped
}

func (r *Result) addWarning(w string) {
	if w != "" {
		r.Warnings = append(r.Warnings, w)
	}
}
