package store

import (
	"context"
	"encoding/json"

	"github.com/artpar/panel/internal/core/domain"
)

// =============================================================================
// Activity Log Operations
// =============================================================================

// activityRow represents an activity_log row in the database.
type activityRow struct {
	Seq         int64   `db:"seq"`
	ID          string  `db:"id"`
	ActorID     string  `db:"actor_id"`
	EntityType  string  `db:"entity_type"`
	EntityID    string  `db:"entity_id"`
	Action      string  `db:"action"`
	Description string  `db:"description"`
	Before      *string `db:"before_json"`
	After       *string `db:"after_json"`
	CreatedAt   string  `db:"created_at"`
}

func (q *queries) CreateActivityLog(ctx context.Context, entry *domain.ActivityLogEntry) error {
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return NewStoreError("CreateActivityLog", "activity", entry.ID, "failed to serialize before snapshot", ErrInvalidData)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return NewStoreError("CreateActivityLog", "activity", entry.ID, "failed to serialize after snapshot", ErrInvalidData)
	}

	query := `
		INSERT INTO activity_log (
			id, actor_id, entity_type, entity_id, action, description,
			before_json, after_json, created_at
		) VALUES (
			:id, :actor_id, :entity_type, :entity_id, :action, :description,
			:before_json, :after_json, :created_at
		)`

	row := map[string]any{
		"id":          entry.ID,
		"actor_id":    entry.ActorID,
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"action":      entry.Action,
		"description": entry.Description,
		"before_json": before,
		"after_json":  after,
		"created_at":  formatTime(entry.CreatedAt),
	}

	if _, err := q.exec.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return NewStoreError("CreateActivityLog", "activity", entry.ID, "activity entry with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateActivityLog", "activity", entry.ID, err.Error(), err)
	}
	return nil
}

// ListActivityLog returns entries for one entity, oldest first.
func (q *queries) ListActivityLog(ctx context.Context, entityType, entityID string, opts ListOptions) ([]domain.ActivityLogEntry, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM activity_log WHERE entity_type = ? AND entity_id = ? ORDER BY seq LIMIT ? OFFSET ?`

	var rows []activityRow
	if err := q.exec.SelectContext(ctx, &rows, query, entityType, entityID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListActivityLog", "activity", entityID, err.Error(), err)
	}

	entries := make([]domain.ActivityLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := rowToActivity(&row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func marshalSnapshot(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalSnapshot(s *string) (map[string]any, error) {
	if s == nil || *s == "" || *s == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// rowToActivity converts a database row to a domain.ActivityLogEntry.
func rowToActivity(row *activityRow) (*domain.ActivityLogEntry, error) {
	before, err := unmarshalSnapshot(row.Before)
	if err != nil {
		return nil, NewStoreError("rowToActivity", "activity", row.ID, "failed to parse before snapshot", ErrInvalidData)
	}
	after, err := unmarshalSnapshot(row.After)
	if err != nil {
		return nil, NewStoreError("rowToActivity", "activity", row.ID, "failed to parse after snapshot", ErrInvalidData)
	}

	return &domain.ActivityLogEntry{
		ID:          row.ID,
		ActorID:     row.ActorID,
		EntityType:  row.EntityType,
		EntityID:    row.EntityID,
		Action:      row.Action,
		Description: row.Description,
		Before:      before,
		After:       after,
		CreatedAt:   parseTime(row.CreatedAt),
	}, nil
}
