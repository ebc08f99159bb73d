package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"answerdesk/api/internal/workflow"
)

const answerColumns = `a.id, a.question_id, a.submitter_id, u.display_name, a.content, a.status, a.is_locked,
	a.version_count, a.status_reason, a.created_at, a.updated_at`

const versionColumns = `id, answer_id, version_number, content, note, submitted_at`

func scanAnswer(row rowScanner) (Answer, error) {
	var item Answer
	err := row.Scan(
		&item.ID, &item.QuestionID, &item.SubmitterID, &item.SubmitterName, &item.Content, &item.Status, &item.IsLocked,
		&item.VersionCount, &item.StatusReason, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func scanVersion(row rowScanner) (AnswerVersion, error) {
	var item AnswerVersion
	err := row.Scan(&item.ID, &item.AnswerID, &item.VersionNumber, &item.Content, &item.Note, &item.SubmittedAt)
	return item, err
}

func (s *PostgresStore) GetAnswer(ctx context.Context, answerID string) (Answer, error) {
	item, err := scanAnswer(s.db.QueryRowContext(ctx, `
		SELECT `+answerColumns+`
		FROM answers a
		JOIN users u ON u.id = a.submitter_id
		WHERE a.id=$1
	`, answerID))
	if err != nil {
		return Answer{}, notFoundOr(err, "get answer")
	}
	return item, nil
}

// FindAnswer returns the single answer a submitter holds on a question.
func (s *PostgresStore) FindAnswer(ctx context.Context, questionID, submitterID string) (Answer, error) {
	item, err := scanAnswer(s.db.QueryRowContext(ctx, `
		SELECT `+answerColumns+`
		FROM answers a
		JOIN users u ON u.id = a.submitter_id
		WHERE a.question_id=$1 AND a.submitter_id=$2
	`, questionID, submitterID))
	if err != nil {
		return Answer{}, notFoundOr(err, "find answer")
	}
	return item, nil
}

// ListAnswers lists a question's answers, oldest first. A non-empty
// submitterID restricts the result to that submitter.
func (s *PostgresStore) ListAnswers(ctx context.Context, questionID, submitterID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+answerColumns+`
		FROM answers a
		JOIN users u ON u.id = a.submitter_id
		WHERE a.question_id=$1 AND ($2='' OR a.submitter_id=$2)
		ORDER BY a.created_at ASC, a.id ASC
	`, questionID, submitterID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	items := make([]Answer, 0)
	for rows.Next() {
		item, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return items, nil
}

// CreateAnswer inserts a SUBMITTED answer together with its first version.
// It returns ErrDuplicate when the submitter already holds an answer on the
// question.
func (s *PostgresStore) CreateAnswer(ctx context.Context, answer Answer, version AnswerVersion) (Answer, AnswerVersion, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockOpenQuestion(ctx, tx, answer.QuestionID, answer.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO answers (id, question_id, submitter_id, content, status, version_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
		`, answer.ID, answer.QuestionID, answer.SubmitterID, answer.Content, workflow.AnswerSubmitted, answer.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO answer_versions (id, answer_id, version_number, content, note, submitted_at)
			VALUES ($1, $2, 1, $3, $4, $5)
		`, version.ID, answer.ID, version.Content, version.Note, version.SubmittedAt)
		if err != nil {
			return fmt.Errorf("insert answer version: %w", err)
		}
		return nil
	})
	if err != nil {
		return Answer{}, AnswerVersion{}, err
	}

	answer.Status = workflow.AnswerSubmitted
	answer.VersionCount = 1
	answer.UpdatedAt = answer.CreatedAt
	version.AnswerID = answer.ID
	version.VersionNumber = 1
	return answer, version, nil
}

// ReviseAnswer replaces the content of a revisable, unlocked answer and
// appends the next version. The update only matches when the stored
// version count still equals rev.ExpectedVersionCount; otherwise ErrStale
// is returned and nothing is written. ErrSubmissionClosed is returned when
// the question is no longer open or its deadline has passed.
func (s *PostgresStore) ReviseAnswer(ctx context.Context, rev Revision) (Answer, AnswerVersion, error) {
	var answer Answer
	var version AnswerVersion
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockOpenQuestion(ctx, tx, rev.QuestionID, rev.At); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			WITH revised AS (
				UPDATE answers
				SET content=$3, status='SUBMITTED', status_reason='', version_count=version_count+1, updated_at=$4
				WHERE id=$1
					AND question_id=$5
					AND version_count=$2
					AND is_locked=FALSE
					AND status IN ('DRAFT', 'REVISION_REQUESTED')
				RETURNING *
			)
			SELECT `+answerColumns+`
			FROM revised a
			JOIN users u ON u.id = a.submitter_id
		`, rev.AnswerID, rev.ExpectedVersionCount, rev.Content, rev.At, rev.QuestionID)
		var err error
		answer, err = scanAnswer(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStale
		}
		if err != nil {
			return fmt.Errorf("revise answer: %w", err)
		}

		version, err = scanVersion(tx.QueryRowContext(ctx, `
			INSERT INTO answer_versions (id, answer_id, version_number, content, note, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+versionColumns,
			rev.VersionID, rev.AnswerID, answer.VersionCount, rev.Content, rev.Note, rev.At))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrStale
			}
			return fmt.Errorf("insert answer version: %w", err)
		}
		return nil
	})
	if err != nil {
		return Answer{}, AnswerVersion{}, err
	}
	return answer, version, nil
}

// DispositionAnswer moves an unlocked answer to status. lock also sets
// is_locked.
func (s *PostgresStore) DispositionAnswer(ctx context.Context, answerID string, status workflow.AnswerStatus, reason string, lock bool, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE answers
		SET status=$2, status_reason=$3, is_locked=(is_locked OR $4), updated_at=$5
		WHERE id=$1 AND is_locked=FALSE
	`, answerID, status, reason, lock, at)
	if err != nil {
		return false, fmt.Errorf("disposition answer: %w", err)
	}
	return affected(result, "disposition answer")
}

// DeleteAnswer removes an answer that is neither locked nor APPROVED. Its
// versions, comments and attachment rows go with it.
func (s *PostgresStore) DeleteAnswer(ctx context.Context, answerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM answers
		WHERE id=$1 AND is_locked=FALSE AND status <> 'APPROVED'
	`, answerID)
	if err != nil {
		return false, fmt.Errorf("delete answer: %w", err)
	}
	return affected(result, "delete answer")
}

// ListVersions returns an answer's versions, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, answerID string) ([]AnswerVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM answer_versions
		WHERE answer_id=$1
		ORDER BY version_number DESC
	`, answerID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]AnswerVersion, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (AnswerVersion, error) {
	item, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM answer_versions WHERE id=$1`, versionID))
	if err != nil {
		return AnswerVersion{}, notFoundOr(err, "get version")
	}
	return item, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, answerID string) (AnswerVersion, error) {
	item, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM answer_versions
		WHERE answer_id=$1
		ORDER BY version_number DESC
		LIMIT 1
	`, answerID))
	if err != nil {
		return AnswerVersion{}, notFoundOr(err, "latest version")
	}
	return item, nil
}

// lockOpenQuestion takes a share lock on the question row so a concurrent
// close or completion waits for this transaction, then checks that the
// question still accepts answers at the given instant.
func lockOpenQuestion(ctx context.Context, tx *sql.Tx, questionID string, at time.Time) error {
	var open bool
	err := tx.QueryRowContext(ctx, `
		SELECT status='OPEN' AND submission_deadline > $2
		FROM questions
		WHERE id=$1
		FOR SHARE
	`, questionID, at).Scan(&open)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock question: %w", err)
	}
	if !open {
		return ErrSubmissionClosed
	}
	return nil
}
