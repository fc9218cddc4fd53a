package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityServer is the entity type recorded for server activity.
const EntityServer = "server"

// Activity action names.
const (
	ActivityServerAllocated    = "server_allocated"
	ActivityServerProvisioned  = "server_provisioned"
	ActivityServerStarted      = "server_start"
	ActivityServerStopped      = "server_stop"
	ActivityServerRestarted    = "server_restart"
	ActivityServerSuspended    = "server_suspended"
	ActivityServerUnsuspended  = "server_unsuspended"
	ActivityServerFailed       = "server_error"
	ActivityServerRecovered    = "server_recovered"
	ActivityServerDeleted      = "server_deleted"
	ActivityCredentialsChanged = "server_credentials_updated"
)

// ActivityLogEntry is an append-only audit record.
type ActivityLogEntry struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewServerActivity builds an activity entry for a server.
func NewServerActivity(actorID, serverID, action, description string, now time.Time) *ActivityLogEntry {
	return &ActivityLogEntry{
		ID:          uuid.New().String(),
		ActorID:     actorID,
		EntityType:  EntityServer,
		EntityID:    serverID,
		Action:      action,
		Description: description,
		CreatedAt:   now.UTC(),
	}
}

// PowerActivity returns the activity action name for a power action.
func PowerActivity(a Action) string {
	switch a {
	case ActionStart:
		return ActivityServerStarted
	case ActionStop:
		return ActivityServerStopped
	default:
		return ActivityServerRestarted
	}
}
