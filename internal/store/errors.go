package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound aliases sql.ErrNoRows so callers can match either.
	ErrNotFound = sql.ErrNoRows
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate row")
	// ErrStale reports that a conditional update matched no row because the
	// row changed since it was read.
	ErrStale = errors.New("stale row")
	// ErrSubmissionClosed reports that the question stopped accepting
	// answers before the write could commit.
	ErrSubmissionClosed = errors.New("submission window closed")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolation
}
