package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"answerdesk/api/internal/workflow"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, display_name, password_hash, role, group_label, is_active,
	registration_status, registration_note, COALESCE(reviewed_by, ''), reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var reviewedAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role, &user.GroupLabel, &user.IsActive,
		&user.RegistrationStatus, &user.RegistrationNote, &user.ReviewedBy, &reviewedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	user.ReviewedAt = nullTimePtr(reviewedAt)
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, group_label, is_active, registration_status)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role, user.GroupLabel, user.IsActive, user.RegistrationStatus,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, email))
}

func (s *PostgresStore) ListPendingRegistrations(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE registration_status='pending'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending registrations: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// SetRegistrationStatus moves a pending registration to approved or
// rejected. It reports false when the user is not pending.
func (s *PostgresStore) SetRegistrationStatus(ctx context.Context, userID string, status workflow.RegistrationStatus, note, reviewerID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET registration_status=$2, registration_note=$3, reviewed_by=$4, reviewed_at=$5,
			is_active=($2='approved'), updated_at=$5
		WHERE id=$1 AND registration_status='pending'
	`, userID, status, note, reviewerID, at)
	if err != nil {
		return false, fmt.Errorf("set registration status: %w", err)
	}
	return affected(result, "set registration status")
}

func (s *PostgresStore) SetUserActive(ctx context.Context, userID string, active bool, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active=$2, updated_at=$3
		WHERE id=$1 AND registration_status='approved'
	`, userID, active, at)
	if err != nil {
		return false, fmt.Errorf("set user active: %w", err)
	}
	return affected(result, "set user active")
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the user id bound to a live refresh token.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash=$1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func notFoundOr(err error, wrap string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", wrap, err)
}

// RevokeUserSessions revokes every live refresh session of userID.
func (s *PostgresStore) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE user_id=$1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
