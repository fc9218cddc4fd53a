package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Server Status
// =============================================================================

type ServerStatus string

const (
	StatusProvisioning ServerStatus = "provisioning"
	StatusRunning      ServerStatus = "running"
	StatusStopped      ServerStatus = "stopped"
	StatusRestarting   ServerStatus = "restarting"
	StatusError        ServerStatus = "error"
	StatusSuspended    ServerStatus = "suspended"
)

// AllStatuses lists every lifecycle status.
var AllStatuses = []ServerStatus{
	StatusProvisioning,
	StatusRunning,
	StatusStopped,
	StatusRestarting,
	StatusError,
	StatusSuspended,
}

// =============================================================================
// Actions
// =============================================================================

// Action is a customer- or admin-invocable power operation.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// AllActions lists the power actions.
var AllActions = []Action{ActionStart, ActionStop, ActionRestart}

// ParseAction accepts an action name in any case.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, s)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server is a provisioned VPS or RDP instance owned by a user.
type Server struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	PlanID           string       `json:"plan_id"`
	Hostname         string       `json:"hostname"`
	IPAddress        string       `json:"ip_address"`
	IPv6Address      string       `json:"ipv6_address,omitempty"`
	Location         string       `json:"location"`
	OSTemplate       string       `json:"os_template"`
	Username         string       `json:"username"`
	Password         string       `json:"-"`
	RDPPort          int          `json:"rdp_port"`
	SSHPort          int          `json:"ssh_port"`
	Status           ServerStatus `json:"status"`
	LastStatusChange time.Time    `json:"last_status_change"`
	Version          int64        `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
}

// ServerSpec carries the validated fields a new server is built from.
type ServerSpec struct {
	UserID      string
	PlanID      string
	Hostname    string
	IPAddress   string
	IPv6Address string
	Location    string
	OSTemplate  string
	Username    string
	Password    string
	RDPPort     int
	SSHPort     int
}

// NewServer builds a server in the provisioning state.
func NewServer(spec ServerSpec, now time.Time) *Server {
	now = now.UTC()
	return &Server{
		ID:               uuid.New().String(),
		UserID:           spec.UserID,
		PlanID:           spec.PlanID,
		Hostname:         spec.Hostname,
		IPAddress:        spec.IPAddress,
		IPv6Address:      spec.IPv6Address,
		Location:         spec.Location,
		OSTemplate:       spec.OSTemplate,
		Username:         spec.Username,
		Password:         spec.Password,
		RDPPort:          spec.RDPPort,
		SSHPort:          spec.SSHPort,
		Status:           StatusProvisioning,
		LastStatusChange: now,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Deleted reports whether the server carries a deletion marker.
func (s *Server) Deleted() bool {
	return s.DeletedAt != nil
}

// OwnedBy reports whether userID owns the server.
func (s *Server) OwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// Transition moves the server to a new status along an internal edge
// (provisioning confirmation, restart settle, admin overrides).
func (s *Server) Transition(to ServerStatus, at time.Time) error {
	if err := ValidateTransition(s.Status, to); err != nil {
		return err
	}
	s.setStatus(to, at)
	return nil
}

// Apply runs a power action against the server. The returned flag is false
// for no-op actions, in which case the server is left untouched.
func (s *Server) Apply(action Action, at time.Time) (bool, error) {
	next, changed, err := NextStatus(s.Status, action)
	if err != nil {
		return false, err
	}
	if changed {
		s.setStatus(next, at)
	}
	return changed, nil
}

func (s *Server) setStatus(to ServerStatus, at time.Time) {
	at = at.UTC()
	s.Status = to
	s.LastStatusChange = at
	s.UpdatedAt = at
}

// =============================================================================
// State Machine
// =============================================================================

// actionTransitions is the power-action table. Pairs that are absent are invalid.
var actionTransitions = map[ServerStatus]map[Action]ServerStatus{
	StatusRunning: {
		ActionStart:   StatusRunning,
		ActionStop:    StatusStopped,
		ActionRestart: StatusRestarting,
	},
	StatusStopped: {
		ActionStart: StatusRunning,
		ActionStop:  StatusStopped,
	},
}

// NextStatus resolves the status a power action leads to.
// changed is false when the action is a no-op in the current status.
func NextStatus(current ServerStatus, action Action) (next ServerStatus, changed bool, err error) {
	row, ok := actionTransitions[current]
	if !ok {
		return current, false, fmt.Errorf("%w: cannot %s a %s server", ErrInvalidTransition, action, current)
	}
	next, ok = row[action]
	if !ok {
		return current, false, fmt.Errorf("%w: cannot %s a %s server", ErrInvalidTransition, action, current)
	}
	return next, next != current, nil
}

// AllowedActions returns the actions that are valid (including no-ops) in a status.
// UIs use it to decide which buttons to enable.
func AllowedActions(current ServerStatus) []Action {
	var actions []Action
	for _, a := range AllActions {
		if _, _, err := NextStatus(current, a); err == nil {
			actions = append(actions, a)
		}
	}
	return actions
}

// internalTransitions are edges not reachable through power actions.
// Every status may additionally move to error or suspended.
var internalTransitions = map[ServerStatus][]ServerStatus{
	StatusProvisioning: {StatusRunning},
	StatusRestarting:   {StatusRunning},
	StatusSuspended:    {StatusStopped},
	StatusError:        {StatusStopped},
}

// ValidateTransition checks an internal status edge.
func ValidateTransition(from, to ServerStatus) error {
	if from == to {
		return fmt.Errorf("%w: already %s", ErrInvalidTransition, from)
	}
	if to == StatusError || to == StatusSuspended {
		if isKnownStatus(from) {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, s := range internalTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func isKnownStatus(s ServerStatus) bool {
	for _, known := range AllStatuses {
		if known == s {
			return true
		}
	}
	return false
}
