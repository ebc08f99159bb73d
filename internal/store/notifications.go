package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const notificationColumns = `id, recipient_id, type, title, body, link, resource_type, resource_id, is_read, read_at, created_at`

func scanNotification(row rowScanner) (Notification, error) {
	var item Notification
	var readAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.RecipientID, &item.Type, &item.Title, &item.Body, &item.Link,
		&item.ResourceType, &item.ResourceID, &item.IsRead, &readAt, &item.CreatedAt,
	)
	if err != nil {
		return Notification{}, err
	}
	item.ReadAt = nullTimePtr(readAt)
	return item, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, body, link, resource_type, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, item.ID, item.RecipientID, item.Type, item.Title, item.Body, item.Link, item.ResourceType, item.ResourceID, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, notificationID string) (Notification, error) {
	item, err := scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, notificationID))
	if err != nil {
		return Notification{}, notFoundOr(err, "get notification")
	}
	return item, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id=$1 AND (NOT $2 OR is_read=FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		item, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=FALSE`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead reports false when the notification does not belong
// to the recipient or does not exist.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read=TRUE, read_at=COALESCE(read_at, $3)
		WHERE id=$2 AND recipient_id=$1
	`, recipientID, notificationID, at)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected(result, "mark notification read")
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE, read_at=$2
		WHERE recipient_id=$1 AND is_read=FALSE
	`, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return int(n), nil
}
