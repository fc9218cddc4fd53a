package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/panel/internal/core/domain"
)

// =============================================================================
// Server Operations
// =============================================================================

// serverRow represents a server row in the database.
type serverRow struct {
	ID               string  `db:"id"`
	UserID           string  `db:"user_id"`
	PlanID           string  `db:"plan_id"`
	Hostname         string  `db:"hostname"`
	IPAddress        string  `db:"ip_address"`
	IPv6Address      string  `db:"ipv6_address"`
	Location         string  `db:"location"`
	OSTemplate       string  `db:"os_template"`
	Username         string  `db:"username"`
	Password         string  `db:"password"`
	RDPPort          int     `db:"rdp_port"`
	SSHPort          int     `db:"ssh_port"`
	Status           string  `db:"status"`
	LastStatusChange string  `db:"last_status_change"`
	Version          int64   `db:"version"`
	CreatedAt        string  `db:"created_at"`
	UpdatedAt        string  `db:"updated_at"`
	DeletedAt        *string `db:"deleted_at"`
}

func (q *queries) CreateServer(ctx context.Context, server *domain.Server) error {
	password, err := q.sealer.Seal(server.Password)
	if err != nil {
		return NewStoreError("CreateServer", "server", server.ID, "failed to seal password", ErrInvalidData)
	}

	query := `
		INSERT INTO servers (
			id, user_id, plan_id, hostname, ip_address, ipv6_address,
			location, os_template, username, password, rdp_port, ssh_port,
			status, last_status_change, version, created_at, updated_at
		) VALUES (
			:id, :user_id, :plan_id, :hostname, :ip_address, :ipv6_address,
			:location, :os_template, :username, :password, :rdp_port, :ssh_port,
			:status, :last_status_change, :version, :created_at, :updated_at
		)`

	row := map[string]any{
		"id":                 server.ID,
		"user_id":            server.UserID,
		"plan_id":            server.PlanID,
		"hostname":           server.Hostname,
		"ip_address":         server.IPAddress,
		"ipv6_address":       server.IPv6Address,
		"location":           server.Location,
		"os_template":        server.OSTemplate,
		"username":           server.Username,
		"password":           password,
		"rdp_port":           server.RDPPort,
		"ssh_port":           server.SSHPort,
		"status":             string(server.Status),
		"last_status_change": formatTime(server.LastStatusChange),
		"version":            server.Version,
		"created_at":         formatTime(server.CreatedAt),
		"updated_at":         formatTime(server.UpdatedAt),
	}

	if _, err := q.exec.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("CreateServer", "server", server.ID, "server with this ID already exists", ErrDuplicateID)
		}
		if isForeignKeyViolation(err) {
			return NewStoreError("CreateServer", "server", server.ID, "plan not found", ErrForeignKey)
		}
		return NewStoreError("CreateServer", "server", server.ID, err.Error(), err)
	}

	return nil
}

func (q *queries) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	var row serverRow
	err := q.exec.GetContext(ctx, &row, `SELECT * FROM servers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetServer", "server", id, "server not found", ErrNotFound)
		}
		return nil, NewStoreError("GetServer", "server", id, err.Error(), err)
	}

	return q.rowToServer(&row)
}

func (q *queries) ListServersByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Server, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM servers WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	var rows []serverRow
	if err := q.exec.SelectContext(ctx, &rows, query, userID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListServersByUser", "server", "", err.Error(), err)
	}

	return q.rowsToServers(rows)
}

func (q *queries) CountServersByUser(ctx context.Context, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM servers WHERE user_id = ? AND deleted_at IS NULL`
	if err := q.exec.GetContext(ctx, &n, query, userID); err != nil {
		return 0, NewStoreError("CountServersByUser", "server", "", err.Error(), err)
	}
	return n, nil
}

func (q *queries) ListServersByStatus(ctx context.Context, status domain.ServerStatus, opts ListOptions) ([]domain.Server, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM servers WHERE status = ? AND deleted_at IS NULL ORDER BY last_status_change, id LIMIT ? OFFSET ?`

	var rows []serverRow
	if err := q.exec.SelectContext(ctx, &rows, query, string(status), opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListServersByStatus", "server", "", err.Error(), err)
	}

	return q.rowsToServers(rows)
}

func (q *queries) UpdateServerStatus(ctx context.Context, id string, from, to domain.ServerStatus, at time.Time, version int64) error {
	query := `
		UPDATE servers SET
			status = ?,
			last_status_change = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND status = ? AND version = ? AND deleted_at IS NULL`

	ts := formatTime(at)
	result, err := q.exec.ExecContext(ctx, query, string(to), ts, ts, id, string(from), version)
	if err != nil {
		return NewStoreError("UpdateServerStatus", "server", id, err.Error(), err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return q.missOrConflict(ctx, "UpdateServerStatus", id)
	}
	return nil
}

func (q *queries) UpdateServerCredentials(ctx context.Context, id, username, password string, at time.Time, version int64) error {
	sealed, err := q.sealer.Seal(password)
	if err != nil {
		return NewStoreError("UpdateServerCredentials", "server", id, "failed to seal password", ErrInvalidData)
	}

	query := `
		UPDATE servers SET
			username = ?,
			password = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL`

	result, err := q.exec.ExecContext(ctx, query, username, sealed, formatTime(at), id, version)
	if err != nil {
		return NewStoreError("UpdateServerCredentials", "server", id, err.Error(), err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return q.missOrConflict(ctx, "UpdateServerCredentials", id)
	}
	return nil
}

func (q *queries) SoftDeleteServer(ctx context.Context, id string, at time.Time) error {
	ts := formatTime(at)
	query := `UPDATE servers SET deleted_at = ?, updated_at = ?, version = version + 1 WHERE id = ? AND deleted_at IS NULL`

	result, err := q.exec.ExecContext(ctx, query, ts, ts, id)
	if err != nil {
		return NewStoreError("SoftDeleteServer", "server", id, err.Error(), err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return NewStoreError("SoftDeleteServer", "server", id, "server not found", ErrNotFound)
	}
	return nil
}

// missOrConflict explains why a guarded update touched no rows.
func (q *queries) missOrConflict(ctx context.Context, op, id string) error {
	var deletedAt *string
	err := q.exec.GetContext(ctx, &deletedAt, `SELECT deleted_at FROM servers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deletedAt != nil) {
		return NewStoreError(op, "server", id, "server not found", ErrNotFound)
	}
	if err != nil {
		return NewStoreError(op, "server", id, err.Error(), err)
	}
	return NewStoreError(op, "server", id, "server was modified concurrently", ErrConflict)
}

func (q *queries) rowsToServers(rows []serverRow) ([]domain.Server, error) {
	servers := make([]domain.Server, 0, len(rows))
	for _, row := range rows {
		server, err := q.rowToServer(&row)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}
	return servers, nil
}

// rowToServer converts a database row to a domain.Server.
func (q *queries) rowToServer(row *serverRow) (*domain.Server, error) {
	password, err := q.sealer.Open(row.Password)
	if err != nil {
		return nil, NewStoreError("rowToServer", "server", row.ID, "failed to open password", ErrInvalidData)
	}

	var deletedAt *time.Time
	if row.DeletedAt != nil && *row.DeletedAt != "" {
		t := parseTime(*row.DeletedAt)
		deletedAt = &t
	}

	return &domain.Server{
		ID:               row.ID,
		UserID:           row.UserID,
		PlanID:           row.PlanID,
		Hostname:         row.Hostname,
		IPAddress:        row.IPAddress,
		IPv6Address:      row.IPv6Address,
		Location:         row.Location,
		OSTemplate:       row.OSTemplate,
		Username:         row.Username,
		Password:         password,
		RDPPort:          row.RDPPort,
		SSHPort:          row.SSHPort,
		Status:           domain.ServerStatus(row.Status),
		LastStatusChange: parseTime(row.LastStatusChange),
		Version:          row.Version,
		CreatedAt:        parseTime(row.CreatedAt),
		UpdatedAt:        parseTime(row.UpdatedAt),
		DeletedAt:        deletedAt,
	}, nil
}
