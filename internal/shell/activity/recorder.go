// Package activity appends audit entries for server changes. Writes are
// best-effort: a failed append never undoes the change it describes.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/shell/store"
)

// Redacted replaces secret values in snapshots.
const Redacted = "<redacted>"

var sensitiveKeys = map[string]struct{}{
	"password":    {},
	"secret":      {},
	"token":       {},
	"private_key": {},
}

// Recorder writes activity entries to the store.
type Recorder struct {
	store  store.Store
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil logger falls back to slog.Default().
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger}
}

// Record sanitizes and appends an entry. On failure it logs at warn level and
// returns a warning for the caller to surface; the empty string means success.
func (r *Recorder) Record(ctx context.Context, entry *domain.ActivityLogEntry) string {
	entry.Before = Sanitize(entry.Before)
	entry.After = Sanitize(entry.After)

	if err := r.store.CreateActivityLog(ctx, entry); err != nil {
		r.logger.Warn("failed to record activity",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
		return fmt.Sprintf("activity log entry %q was not recorded", entry.Action)
	}
	return ""
}

// Sanitize returns a copy of m with sensitive values redacted. Nested maps are
// sanitized too.
func Sanitize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = Redacted
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// ServerSnapshot captures the audited fields of a server. The password is
// always redacted.
func ServerSnapshot(s *domain.Server) map[string]any {
	return map[string]any{
		"status":      string(s.Status),
		"hostname":    s.Hostname,
		"ip_address":  s.IPAddress,
		"location":    s.Location,
		"os_template": s.OSTemplate,
		"username":    s.Username,
		"password":    Redacted,
		"plan_id":     s.PlanID,
	}
}

// StatusSnapshot captures only the status, for power actions.
func StatusSnapshot(status domain.ServerStatus) map[string]any {
	return map[string]any{"status": string(status)}
}
