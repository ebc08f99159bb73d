package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks questions.fts against plainto_tsquery and uses ts_headline
// for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	where := []string{"q.fts @@ " + tsQuery}
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.OwnerID != "" {
		where = append(where, "q.owner_id = "+arg(q.OwnerID))
	}
	if len(q.Statuses) > 0 {
		placeholders := make([]string, 0, len(q.Statuses))
		for _, status := range q.Statuses {
			placeholders = append(placeholders, arg(status))
		}
		where = append(where, "q.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.GroupFilter {
		where = append(where, "(q.target_group = '' OR q.target_group = "+arg(q.Group)+")")
	}
	filter := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM questions q WHERE "+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT q.id, q.title,
			ts_headline('english', coalesce(q.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			q.status, q.target_group
		FROM questions q
		WHERE %s
		ORDER BY ts_rank(q.fts, %s) DESC, q.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, filter, tsQuery, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Status, &r.TargetGroup); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadQuestionRecords returns every question for full reindexing.
func (p *PgFTS) LoadQuestionRecords(ctx context.Context) ([]QuestionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, tags, status, owner_id, target_group, submission_deadline
		FROM questions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	records := make([]QuestionRecord, 0)
	for rows.Next() {
		var rec QuestionRecord
		var tags []byte
		var deadline sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &tags, &rec.Status, &rec.OwnerID, &rec.TargetGroup, &deadline); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &rec.Tags); err != nil {
				return nil, fmt.Errorf("decode question tags: %w", err)
			}
		}
		if deadline.Valid {
			rec.Deadline = deadline.Time.Unix()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return records, nil
}
