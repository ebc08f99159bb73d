// Package sweep runs the periodic deadline pass: OPEN questions whose
// submission deadline has passed are closed, and submitters with unfinished
// answers on soon-to-close questions get one reminder per question.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

// Store is the slice of persistence the sweep needs. Both claim methods are
// conditional updates, so concurrent sweepers never double-process a row.
type Store interface {
	CloseExpiredQuestions(context.Context, time.Time) ([]store.Question, error)
	ClaimDeadlineReminders(context.Context, time.Time, time.Time) ([]store.Question, error)
	ListAnswers(context.Context, string, string) ([]store.Answer, error)
}

// Notifier delivers durable notifications.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message)
}

// Indexer receives status changes for the search index.
type Indexer interface {
	IndexQuestion(rec search.QuestionRecord)
}

// Report summarises one pass.
type Report struct {
	Closed    int `json:"closed"`
	Reminded  int `json:"reminded"`
	Reminders int `json:"reminders"`
}

type Sweeper struct {
	store          Store
	notifier       Notifier
	indexer        Indexer
	reminderWindow time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a sweeper. indexer may be nil. A non-positive reminderWindow
// disables reminders.
func New(s Store, notifier Notifier, indexer Indexer, reminderWindow time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:          s,
		notifier:       notifier,
		indexer:        indexer,
		reminderWindow: reminderWindow,
		logger:         logger,
		now:            time.Now,
	}
}

// Run performs one pass. It is safe to call concurrently and repeatedly.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	now := s.now().UTC()

	closed, err := s.store.CloseExpiredQuestions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("close expired questions: %w", err)
	}
	report.Closed = len(closed)
	for _, question := range closed {
		s.logger.Info("question closed by deadline", "question_id", question.ID, "deadline", question.Deadline)
		if s.indexer != nil {
			s.indexer.IndexQuestion(search.RecordFor(question))
		}
		s.notifier.Notify(ctx, notify.Message{
			RecipientID:  question.OwnerID,
			Type:         workflow.NotifyQuestionClosed,
			Title:        "Question closed",
			Body:         `"` + question.Title + `" has been closed (deadline passed).`,
			Link:         "/questions/" + question.ID,
			ResourceType: workflow.ResourceQuestion,
			ResourceID:   question.ID,
			Payload:      map[string]any{"questionId": question.ID, "status": string(question.Status)},
			Also:         []notify.Scope{notify.QuestionScope(question.ID)},
		})
	}

	if s.reminderWindow <= 0 {
		return report, nil
	}

	due, err := s.store.ClaimDeadlineReminders(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		return report, fmt.Errorf("claim deadline reminders: %w", err)
	}
	report.Reminded = len(due)
	for _, question := range due {
		sent, err := s.remind(ctx, question)
		report.Reminders += sent
		if err != nil {
			s.logger.Warn("deadline reminders", "question_id", question.ID, "error", err)
		}
	}
	return report, nil
}

func (s *Sweeper) remind(ctx context.Context, question store.Question) (int, error) {
	answers, err := s.store.ListAnswers(ctx, question.ID, "")
	if err != nil {
		return 0, fmt.Errorf("list answers: %w", err)
	}
	body := fmt.Sprintf(`"%s" closes %s. Your answer is still unfinished.`, question.Title, question.Deadline.UTC().Format(time.RFC1123))
	sent := 0
	for _, answer := range answers {
		if answer.Status != workflow.AnswerDraft && answer.Status != workflow.AnswerRevisionRequested {
			continue
		}
		s.notifier.Notify(ctx, notify.Message{
			RecipientID:  answer.SubmitterID,
			Type:         workflow.NotifyDeadlineReminder,
			Title:        "Deadline approaching",
			Body:         body,
			Link:         "/questions/" + question.ID,
			ResourceType: workflow.ResourceQuestion,
			ResourceID:   question.ID,
			Payload:      map[string]any{"questionId": question.ID, "answerId": answer.ID, "deadline": question.Deadline},
		})
		sent++
	}
	return sent, nil
}
