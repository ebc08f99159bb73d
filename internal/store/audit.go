package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertAuditEntry appends to the audit log. The table rejects updates and
// deletes.
func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, action, resource_type, resource_id, metadata, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
	`, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, string(raw), entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the entries recorded against one resource,
// oldest first.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, resource_type, resource_id, metadata, ip, user_agent, created_at
		FROM audit_log
		WHERE resource_type=$1 AND resource_id=$2
		ORDER BY id ASC
	`, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEntry, 0)
	for rows.Next() {
		var item AuditEntry
		var raw []byte
		if err := rows.Scan(&item.ID, &item.ActorID, &item.Action, &item.ResourceType, &item.ResourceID, &raw, &item.IP, &item.UserAgent, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return items, nil
}
