package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"answerdesk/api/internal/export"
	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

type CompilationInput struct {
	Content string `json:"content" validate:"max=200000"`
}

// SaveCompilation stores the owner's compiled answer. An empty body keeps
// the content saved earlier and only refreshes compiledAt.
func (s *Service) SaveCompilation(ctx context.Context, caller workflow.Caller, questionID string, input CompilationInput) (QuestionView, error) {
	if err := validateInput(input); err != nil {
		return QuestionView{}, err
	}
	q, err := s.ownedQuestion(ctx, caller, questionID)
	if err != nil {
		return QuestionView{}, err
	}
	if err := workflow.CheckCompilationSave(q.Status); err != nil {
		return QuestionView{}, err
	}

	content := input.Content
	if strings.TrimSpace(content) == "" {
		content = q.CompiledContent
	}
	now := s.clock()
	ok, err := s.store.SaveCompilation(ctx, q.ID, content, now)
	if err != nil {
		return QuestionView{}, err
	}
	if !ok {
		return QuestionView{}, workflow.InvalidTransition("compilation can only be saved while the question is open or closed")
	}
	q.CompiledContent = content
	q.CompiledAt = &now
	q.UpdatedAt = now

	s.record(ctx, caller, workflow.AuditCompilationSave, workflow.ResourceQuestion, q.ID, map[string]any{"length": len(content)})
	return questionView(caller, q), nil
}

// ApproveCompilation completes an open or closed question and locks the answers the
// owner already approved. Answers in any other status are left as they are.
func (s *Service) ApproveCompilation(ctx context.Context, caller workflow.Caller, questionID string) (QuestionView, error) {
	q, err := s.ownedQuestion(ctx, caller, questionID)
	if err != nil {
		return QuestionView{}, err
	}
	if err := workflow.CheckCompilationApprove(q.Status, q.CompiledContent); err != nil {
		return QuestionView{}, err
	}

	now := s.clock()
	locked, ok, err := s.store.ApproveCompilation(ctx, q.ID, now)
	if err != nil {
		return QuestionView{}, err
	}
	if !ok {
		current, err := s.store.GetQuestion(ctx, q.ID)
		if err != nil {
			return QuestionView{}, notFound(err, "question not found")
		}
		if err := workflow.CheckCompilationApprove(current.Status, current.CompiledContent); err != nil {
			return QuestionView{}, err
		}
		return QuestionView{}, workflow.Conflict("question changed concurrently")
	}
	q.Status = workflow.QuestionCompleted
	q.ApprovedAt = &now
	q.UpdatedAt = now
	if q.ClosedAt == nil {
		q.ClosedAt = &now
	}

	s.record(ctx, caller, workflow.AuditCompilationApprove, workflow.ResourceQuestion, q.ID, map[string]any{"lockedAnswers": locked})
	s.record(ctx, caller, workflow.AuditQuestionComplete, workflow.ResourceQuestion, q.ID, nil)
	s.index.IndexQuestion(search.RecordFor(q))
	s.notifyCompleted(ctx, q)
	return questionView(caller, q), nil
}

// notifyCompleted tells every distinct submitter on the question. The
// question scope gets a single live event.
func (s *Service) notifyCompleted(ctx context.Context, q store.Question) {
	answers, err := s.store.ListAnswers(ctx, q.ID, "")
	if err != nil {
		s.logger.Warn("list answers for completion notice", "question_id", q.ID, "error", err)
		answers = nil
	}
	seen := make(map[string]struct{}, len(answers))
	for _, answer := range answers {
		if _, dup := seen[answer.SubmitterID]; dup {
			continue
		}
		seen[answer.SubmitterID] = struct{}{}
		s.notifier.Notify(ctx, notify.Message{
			RecipientID:  answer.SubmitterID,
			Type:         workflow.NotifyQuestionCompleted,
			Title:        "Question completed",
			Body:         "The question has been completed and the final answer approved.",
			Link:         "/questions/" + q.ID,
			ResourceType: workflow.ResourceQuestion,
			ResourceID:   q.ID,
			Payload:      map[string]any{"questionId": q.ID},
		})
	}
	s.notifier.Broadcast(ctx, notify.QuestionScope(q.ID), string(workflow.NotifyQuestionCompleted), map[string]any{"questionId": q.ID})
}

// CompilationView is the compiled record as served on its own endpoint.
type CompilationView struct {
	QuestionID     string             `json:"questionId"`
	Status         string             `json:"status"`
	CompiledAnswer CompiledAnswerView `json:"compiledAnswer"`
}

// GetCompilation serves the compiled answer to the owner at any time and to
// submitters who could see the question once it is completed.
func (s *Service) GetCompilation(ctx context.Context, caller workflow.Caller, questionID string) (CompilationView, error) {
	q, err := s.compiledQuestion(ctx, caller, questionID)
	if err != nil {
		return CompilationView{}, err
	}
	return CompilationView{
		QuestionID: q.ID,
		Status:     string(q.Status),
		CompiledAnswer: CompiledAnswerView{
			Content:    q.CompiledContent,
			CompiledAt: q.CompiledAt,
			ApprovedAt: q.ApprovedAt,
		},
	}, nil
}

// ExportCompilation renders an approved compilation to PDF.
func (s *Service) ExportCompilation(ctx context.Context, caller workflow.Caller, questionID string) (*export.Result, error) {
	q, err := s.compiledQuestion(ctx, caller, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status != workflow.QuestionCompleted || q.ApprovedAt == nil {
		return nil, workflow.InvalidTransition("only completed questions can be exported")
	}

	contributors, err := s.store.ListAnswers(ctx, q.ID, "")
	if err != nil {
		return nil, err
	}
	approved := 0
	for _, answer := range contributors {
		if answer.Status == workflow.AnswerApproved {
			approved++
		}
	}
	owner := q.OwnerName
	if workflow.RedactOwner(caller, q.OwnerID, q.Anonymous) {
		owner = ""
	}

	result, err := s.exporter.CompilationPDF(ctx, export.Compilation{
		QuestionID:   q.ID,
		Title:        q.Title,
		Description:  q.Description,
		Tags:         q.Tags,
		OwnerName:    owner,
		Content:      q.CompiledContent,
		CompletedAt:  approvedAt(q),
		Contributors: approved,
	})
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		return nil, workflow.InvalidTransition("compiled answer is empty")
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
	case err != nil:
		return nil, err
	}
	return result, nil
}

func (s *Service) compiledQuestion(ctx context.Context, caller workflow.Caller, questionID string) (store.Question, error) {
	if err := workflow.Authorize(caller, rbac.ActionViewQuestions); err != nil {
		return store.Question{}, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return store.Question{}, notFound(err, "question not found")
	}
	if caller.ID == q.OwnerID {
		return q, nil
	}
	if q.Status != workflow.QuestionCompleted ||
		caller.Role != rbac.RoleSubmitter ||
		(q.TargetGroup != "" && q.TargetGroup != caller.Group) {
		return store.Question{}, workflow.NotFound("compilation not found")
	}
	return q, nil
}

func approvedAt(q store.Question) time.Time {
	if q.ApprovedAt != nil {
		return *q.ApprovedAt
	}
	return q.UpdatedAt
}
