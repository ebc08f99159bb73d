package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"answerdesk/api/internal/workflow"
)

func openIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func seedUser(t *testing.T, ctx context.Context, s *PostgresStore, id, role string) User {
	t.Helper()
	user, err := s.CreateUser(ctx, User{
		ID:                 id,
		Email:              id + "@example.test",
		DisplayName:        strings.ToUpper(id),
		PasswordHash:       "hash",
		Role:               role,
		IsActive:           true,
		RegistrationStatus: workflow.RegistrationApproved,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return user
}

func seedOpenQuestion(t *testing.T, ctx context.Context, s *PostgresStore, id, ownerID string, deadline time.Time) {
	t.Helper()
	now := time.Now().UTC()
	if err := s.InsertQuestion(ctx, Question{
		ID:          id,
		OwnerID:     ownerID,
		Title:       "Title " + id,
		Description: "Description",
		Tags:        []string{"ops"},
		Difficulty:  workflow.DifficultyMedium,
		Deadline:    deadline,
		Anonymous:   true,
		Status:      workflow.QuestionDraft,
		CreatedAt:   now,
	}); err != nil {
		t.Fatalf("insert question: %v", err)
	}
	ok, err := s.TransitionQuestion(ctx, id, workflow.QuestionDraft, workflow.QuestionOpen, now)
	if err != nil || !ok {
		t.Fatalf("publish question: ok=%v err=%v", ok, err)
	}
}

func TestAnswerLedgerPostgres(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner := seedUser(t, ctx, s, "usr_owner", "authority")
	submitter := seedUser(t, ctx, s, "usr_sub", "submitter")
	seedOpenQuestion(t, ctx, s, "qst_1", owner.ID, time.Now().Add(time.Hour))

	now := time.Now().UTC()
	answer, v1, err := s.CreateAnswer(ctx,
		Answer{ID: "ans_1", QuestionID: "qst_1", SubmitterID: submitter.ID, Content: "first", CreatedAt: now},
		AnswerVersion{ID: "ver_1", Content: "first", SubmittedAt: now},
	)
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if answer.VersionCount != 1 || v1.VersionNumber != 1 {
		t.Fatalf("expected first version, got count=%d number=%d", answer.VersionCount, v1.VersionNumber)
	}

	_, _, err = s.CreateAnswer(ctx,
		Answer{ID: "ans_dup", QuestionID: "qst_1", SubmitterID: submitter.ID, Content: "again", CreatedAt: now},
		AnswerVersion{ID: "ver_dup", Content: "again", SubmittedAt: now},
	)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second answer, got %v", err)
	}

	// SUBMITTED answers cannot be revised until revision is requested.
	_, _, err = s.ReviseAnswer(ctx, Revision{AnswerID: "ans_1", QuestionID: "qst_1", ExpectedVersionCount: 1, VersionID: "ver_2", Content: "second", At: now})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale while SUBMITTED, got %v", err)
	}

	ok, err := s.DispositionAnswer(ctx, "ans_1", workflow.AnswerRevisionRequested, "more detail", false, now)
	if err != nil || !ok {
		t.Fatalf("request revision: ok=%v err=%v", ok, err)
	}

	_, _, err = s.ReviseAnswer(ctx, Revision{AnswerID: "ans_1", QuestionID: "qst_1", ExpectedVersionCount: 0, VersionID: "ver_x", Content: "stale", At: now})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for wrong expected count, got %v", err)
	}

	revised, v2, err := s.ReviseAnswer(ctx, Revision{AnswerID: "ans_1", QuestionID: "qst_1", ExpectedVersionCount: 1, VersionID: "ver_2", Content: "second", Note: "fixed", At: now})
	if err != nil {
		t.Fatalf("revise answer: %v", err)
	}
	if revised.Status != workflow.AnswerSubmitted || revised.VersionCount != 2 || revised.Content != "second" {
		t.Fatalf("unexpected revised answer: %+v", revised)
	}
	if v2.VersionNumber != 2 || v2.Note != "fixed" {
		t.Fatalf("unexpected second version: %+v", v2)
	}

	versions, err := s.ListVersions(ctx, "ans_1")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].VersionNumber != 2 || versions[1].Content != "first" {
		t.Fatalf("unexpected versions: %+v", versions)
	}

	// A closed question refuses the write even when the answer is revisable.
	if ok, err := s.DispositionAnswer(ctx, "ans_1", workflow.AnswerRevisionRequested, "", false, now); err != nil || !ok {
		t.Fatalf("request second revision: ok=%v err=%v", ok, err)
	}
	if ok, err := s.TransitionQuestion(ctx, "qst_1", workflow.QuestionOpen, workflow.QuestionClosed, now); err != nil || !ok {
		t.Fatalf("close question: ok=%v err=%v", ok, err)
	}
	_, _, err = s.ReviseAnswer(ctx, Revision{AnswerID: "ans_1", QuestionID: "qst_1", ExpectedVersionCount: 2, VersionID: "ver_3", Content: "third", At: now})
	if !errors.Is(err, ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed after close, got %v", err)
	}
	_, _, err = s.CreateAnswer(ctx,
		Answer{ID: "ans_late", QuestionID: "qst_1", SubmitterID: owner.ID, Content: "late", CreatedAt: now},
		AnswerVersion{ID: "ver_late", Content: "late", SubmittedAt: now},
	)
	if !errors.Is(err, ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed for a new answer, got %v", err)
	}
	versions, err = s.ListVersions(ctx, "ans_1")
	if err != nil || len(versions) != 2 {
		t.Fatalf("ledger must stay at 2 versions: n=%d err=%v", len(versions), err)
	}
}

func TestAnswerVersionsAreImmutablePostgres(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner := seedUser(t, ctx, s, "usr_owner", "authority")
	submitter := seedUser(t, ctx, s, "usr_sub", "submitter")
	seedOpenQuestion(t, ctx, s, "qst_1", owner.ID, time.Now().Add(time.Hour))

	now := time.Now().UTC()
	if _, _, err := s.CreateAnswer(ctx,
		Answer{ID: "ans_1", QuestionID: "qst_1", SubmitterID: submitter.ID, Content: "first", CreatedAt: now},
		AnswerVersion{ID: "ver_1", Content: "first", SubmittedAt: now},
	); err != nil {
		t.Fatalf("create answer: %v", err)
	}

	_, err := s.DB().ExecContext(ctx, `UPDATE answer_versions SET content='rewritten' WHERE id='ver_1'`)
	assertObjectStateViolation(t, err)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM answer_versions WHERE id='ver_1'`)
	assertObjectStateViolation(t, err)

	ok, err := s.DispositionAnswer(ctx, "ans_1", workflow.AnswerRevisionRequested, "", false, now)
	if err != nil || !ok {
		t.Fatalf("request revision: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteAnswer(ctx, "ans_1")
	if err != nil || !ok {
		t.Fatalf("delete answer: ok=%v err=%v", ok, err)
	}
	if _, err := s.GetVersion(ctx, "ver_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cascade to remove version, got %v", err)
	}
}

func TestQuestionDeadlineSweepPostgres(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner := seedUser(t, ctx, s, "usr_owner", "authority")
	now := time.Now().UTC()
	seedOpenQuestion(t, ctx, s, "qst_past", owner.ID, now.Add(time.Minute))
	seedOpenQuestion(t, ctx, s, "qst_soon", owner.ID, now.Add(3*time.Hour))
	seedOpenQuestion(t, ctx, s, "qst_later", owner.ID, now.Add(72*time.Hour))

	sweepAt := now.Add(2 * time.Minute)
	closed, err := s.CloseExpiredQuestions(ctx, sweepAt)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "qst_past" || closed[0].Status != workflow.QuestionClosed {
		t.Fatalf("unexpected closed questions: %+v", closed)
	}

	again, err := s.CloseExpiredQuestions(ctx, sweepAt)
	if err != nil {
		t.Fatalf("close expired again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected sweep to be idempotent, got %+v", again)
	}

	reminded, err := s.ClaimDeadlineReminders(ctx, sweepAt, sweepAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("claim reminders: %v", err)
	}
	if len(reminded) != 1 || reminded[0].ID != "qst_soon" {
		t.Fatalf("unexpected reminded questions: %+v", reminded)
	}
	reminded, err = s.ClaimDeadlineReminders(ctx, sweepAt, sweepAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("claim reminders again: %v", err)
	}
	if len(reminded) != 0 {
		t.Fatalf("expected reminders to be claimed once, got %+v", reminded)
	}
}

func TestDeleteQuestionRefusesAnsweredPostgres(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner := seedUser(t, ctx, s, "usr_owner", "authority")
	submitter := seedUser(t, ctx, s, "usr_sub", "submitter")
	seedOpenQuestion(t, ctx, s, "qst_1", owner.ID, time.Now().Add(time.Hour))

	now := time.Now().UTC()
	if _, _, err := s.CreateAnswer(ctx,
		Answer{ID: "ans_1", QuestionID: "qst_1", SubmitterID: submitter.ID, Content: "x", CreatedAt: now},
		AnswerVersion{ID: "ver_1", Content: "x", SubmittedAt: now},
	); err != nil {
		t.Fatalf("create answer: %v", err)
	}

	ok, err := s.TransitionQuestion(ctx, "qst_1", workflow.QuestionOpen, workflow.QuestionClosed, now)
	if err != nil || !ok {
		t.Fatalf("close question: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteQuestion(ctx, "qst_1")
	if err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if ok {
		t.Fatal("expected delete of answered question to be refused")
	}
	if _, err := s.GetQuestion(ctx, "qst_1"); err != nil {
		t.Fatalf("question should survive: %v", err)
	}
}

func assertObjectStateViolation(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected immutability trigger to reject the statement")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected postgres error, got %T: %v", err, err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got %s", pgErr.SQLState())
	}
}
