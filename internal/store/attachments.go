package store

import (
	"context"
	"fmt"
)

const attachmentColumns = `id, answer_id, file_ref, filename, content_type, size_bytes, uploaded_by, created_at`

func scanAttachment(row rowScanner) (Attachment, error) {
	var item Attachment
	err := row.Scan(&item.ID, &item.AnswerID, &item.FileRef, &item.Filename, &item.ContentType, &item.SizeBytes, &item.UploadedBy, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answer_attachments (id, answer_id, file_ref, filename, content_type, size_bytes, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.AnswerID, item.FileRef, item.Filename, item.ContentType, item.SizeBytes, item.UploadedBy, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	item, err := scanAttachment(s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM answer_attachments WHERE id=$1`, attachmentID))
	if err != nil {
		return Attachment{}, notFoundOr(err, "get attachment")
	}
	return item, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, answerID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM answer_attachments
		WHERE answer_id=$1
		ORDER BY created_at ASC, id ASC
	`, answerID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		item, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountAttachments(ctx context.Context, answerID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_attachments WHERE answer_id=$1`, answerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count attachments: %w", err)
	}
	return count, nil
}
