package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const commentColumns = `c.id, c.answer_id, c.version_id, c.author_id, u.display_name, c.body, c.start_index, c.end_index,
	c.resolved, c.resolved_at, COALESCE(c.resolved_by, ''), c.created_at`

func scanComment(row rowScanner) (InlineComment, error) {
	var item InlineComment
	var resolvedAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.AnswerID, &item.VersionID, &item.AuthorID, &item.AuthorName, &item.Body, &item.StartIndex, &item.EndIndex,
		&item.Resolved, &resolvedAt, &item.ResolvedBy, &item.CreatedAt,
	)
	if err != nil {
		return InlineComment{}, err
	}
	item.ResolvedAt = nullTimePtr(resolvedAt)
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item InlineComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inline_comments (id, answer_id, version_id, author_id, body, start_index, end_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.AnswerID, item.VersionID, item.AuthorID, item.Body, item.StartIndex, item.EndIndex, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (InlineComment, error) {
	item, err := scanComment(s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM inline_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, commentID))
	if err != nil {
		return InlineComment{}, notFoundOr(err, "get comment")
	}
	return item, nil
}

// ListComments returns an answer's comments in creation order. A non-empty
// versionID restricts them to that version.
func (s *PostgresStore) ListComments(ctx context.Context, answerID, versionID string) ([]InlineComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM inline_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.answer_id=$1 AND ($2='' OR c.version_id=$2)
		ORDER BY c.created_at ASC, c.id ASC
	`, answerID, versionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]InlineComment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ResolveComment marks an unresolved comment resolved. It reports false
// when the comment was already resolved.
func (s *PostgresStore) ResolveComment(ctx context.Context, commentID, resolverID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE inline_comments
		SET resolved=TRUE, resolved_at=$3, resolved_by=$2
		WHERE id=$1 AND resolved=FALSE
	`, commentID, resolverID, at)
	if err != nil {
		return false, fmt.Errorf("resolve comment: %w", err)
	}
	return affected(result, "resolve comment")
}
