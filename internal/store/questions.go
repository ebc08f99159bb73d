package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"answerdesk/api/internal/workflow"
)

const questionColumns = `q.id, q.owner_id, u.display_name, q.title, q.description, q.tags, q.difficulty, q.target_group,
	q.submission_deadline, q.anonymous, q.status, q.compiled_content, q.compiled_at, q.approved_at,
	q.published_at, q.closed_at, q.reminder_sent_at, q.created_at, q.updated_at`

func scanQuestion(row rowScanner) (Question, error) {
	var item Question
	var tags []byte
	var compiledAt, approvedAt, publishedAt, closedAt, reminderSentAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.OwnerName, &item.Title, &item.Description, &tags, &item.Difficulty, &item.TargetGroup,
		&item.Deadline, &item.Anonymous, &item.Status, &item.CompiledContent, &compiledAt, &approvedAt,
		&publishedAt, &closedAt, &reminderSentAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Question{}, err
	}
	item.Tags = make([]string, 0)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return Question{}, fmt.Errorf("decode question tags: %w", err)
		}
	}
	item.CompiledAt = nullTimePtr(compiledAt)
	item.ApprovedAt = nullTimePtr(approvedAt)
	item.PublishedAt = nullTimePtr(publishedAt)
	item.ClosedAt = nullTimePtr(closedAt)
	item.ReminderSentAt = nullTimePtr(reminderSentAt)
	return item, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode question tags: %w", err)
	}
	return raw, nil
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, item Question) error {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questions (id, owner_id, title, description, tags, difficulty, target_group,
			submission_deadline, anonymous, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $11)
	`, item.ID, item.OwnerID, item.Title, item.Description, string(tags), item.Difficulty, item.TargetGroup,
		item.Deadline, item.Anonymous, item.Status, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, questionID string) (Question, error) {
	item, err := scanQuestion(s.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		JOIN users u ON u.id = q.owner_id
		WHERE q.id=$1
	`, questionID))
	if err != nil {
		return Question{}, notFoundOr(err, "get question")
	}
	return item, nil
}

// ListQuestions returns questions matching filter, newest first.
func (s *PostgresStore) ListQuestions(ctx context.Context, filter QuestionFilter) ([]Question, error) {
	clauses := make([]string, 0, 6)
	args := make([]any, 0, 6)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID != "" {
		clauses = append(clauses, "q.owner_id="+arg(filter.OwnerID))
	}
	if filter.Status != "" {
		clauses = append(clauses, "q.status="+arg(filter.Status))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, arg(status))
		}
		clauses = append(clauses, "q.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Group != "" {
		clauses = append(clauses, "(q.target_group='' OR q.target_group="+arg(filter.Group)+")")
	}
	if filter.AnsweredBy != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM answers a WHERE a.question_id=q.id AND a.submitter_id="+arg(filter.AnsweredBy)+")")
	}
	if filter.DeadlineAfter != nil {
		clauses = append(clauses, "q.submission_deadline > "+arg(*filter.DeadlineAfter))
	}

	query := `SELECT ` + questionColumns + ` FROM questions q JOIN users u ON u.id = q.owner_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY q.created_at DESC, q.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		item, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

// UpdateDraftQuestion overwrites the editable fields of a DRAFT question.
// It reports false when the question is no longer a draft.
func (s *PostgresStore) UpdateDraftQuestion(ctx context.Context, item Question) (bool, error) {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET title=$2, description=$3, tags=$4::jsonb, difficulty=$5, target_group=$6,
			submission_deadline=$7, anonymous=$8, updated_at=$9
		WHERE id=$1 AND status='DRAFT'
	`, item.ID, item.Title, item.Description, string(tags), item.Difficulty, item.TargetGroup,
		item.Deadline, item.Anonymous, item.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update draft question: %w", err)
	}
	return affected(result, "update draft question")
}

// TransitionQuestion moves a question from one status to another. It stamps
// published_at or closed_at as appropriate and reports false when the
// question was not in the expected status.
func (s *PostgresStore) TransitionQuestion(ctx context.Context, questionID string, from, to workflow.QuestionStatus, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET status=$3,
			published_at=CASE WHEN $3='OPEN' THEN $4 ELSE published_at END,
			closed_at=CASE WHEN $3='CLOSED' THEN $4 ELSE closed_at END,
			updated_at=$4
		WHERE id=$1 AND status=$2
	`, questionID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("transition question: %w", err)
	}
	return affected(result, "transition question")
}

// DeleteQuestion removes a DRAFT or CLOSED question that has no answers.
// The guard is evaluated in the same statement as the delete.
func (s *PostgresStore) DeleteQuestion(ctx context.Context, questionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM questions q
		WHERE q.id=$1
			AND q.status IN ('DRAFT', 'CLOSED')
			AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id=q.id)
	`, questionID)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return affected(result, "delete question")
}

func (s *PostgresStore) CountAnswers(ctx context.Context, questionID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers WHERE question_id=$1`, questionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return count, nil
}

// SaveCompilation stores the compiled draft while the question is OPEN or
// CLOSED.
func (s *PostgresStore) SaveCompilation(ctx context.Context, questionID, content string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET compiled_content=$2, compiled_at=$3, updated_at=$3
		WHERE id=$1 AND status IN ('OPEN', 'CLOSED')
	`, questionID, content, at)
	if err != nil {
		return false, fmt.Errorf("save compilation: %w", err)
	}
	return affected(result, "save compilation")
}

// ApproveCompilation completes an OPEN or CLOSED question with a non-empty
// compilation and locks every APPROVED answer in one transaction. It
// returns the number of answers locked.
func (s *PostgresStore) ApproveCompilation(ctx context.Context, questionID string, at time.Time) (int, bool, error) {
	var locked int
	changed := false
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE questions
			SET status='COMPLETED', approved_at=$2, closed_at=COALESCE(closed_at, $2), updated_at=$2
			WHERE id=$1 AND status IN ('OPEN', 'CLOSED') AND compiled_content <> ''
		`, questionID, at)
		if err != nil {
			return fmt.Errorf("complete question: %w", err)
		}
		ok, err := affected(result, "complete question")
		if err != nil || !ok {
			return err
		}
		changed = true

		result, err = tx.ExecContext(ctx, `
			UPDATE answers
			SET is_locked=TRUE, updated_at=$2
			WHERE question_id=$1 AND status='APPROVED' AND is_locked=FALSE
		`, questionID, at)
		if err != nil {
			return fmt.Errorf("lock approved answers: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("lock approved answers rows: %w", err)
		}
		locked = int(n)
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return locked, changed, nil
}

// CloseExpiredQuestions closes every OPEN question whose deadline is at or
// before now and returns the closed rows.
func (s *PostgresStore) CloseExpiredQuestions(ctx context.Context, now time.Time) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH closed AS (
			UPDATE questions
			SET status='CLOSED', closed_at=$1, updated_at=$1
			WHERE status='OPEN' AND submission_deadline <= $1
			RETURNING *
		)
		SELECT `+questionColumns+`
		FROM closed q
		JOIN users u ON u.id = q.owner_id
		ORDER BY q.submission_deadline ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("close expired questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		item, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan closed question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed questions: %w", err)
	}
	return items, nil
}

// ClaimDeadlineReminders marks OPEN questions whose deadline falls in
// (now, until] as reminded and returns them. A question is claimed once.
func (s *PostgresStore) ClaimDeadlineReminders(ctx context.Context, now, until time.Time) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE questions
			SET reminder_sent_at=$1
			WHERE status='OPEN'
				AND reminder_sent_at IS NULL
				AND submission_deadline > $1
				AND submission_deadline <= $2
			RETURNING *
		)
		SELECT `+questionColumns+`
		FROM claimed q
		JOIN users u ON u.id = q.owner_id
		ORDER BY q.submission_deadline ASC
	`, now, until)
	if err != nil {
		return nil, fmt.Errorf("claim deadline reminders: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		item, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminded question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminded questions: %w", err)
	}
	return items, nil
}
