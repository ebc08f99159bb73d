package app

import (
	"context"
	"errors"
	"sort"
	"strings"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

const (
	initialSubmissionNote = "Initial submission"
	revisionNote          = "Revision"
)

type SubmitInput struct {
	Content      string `json:"content" validate:"required,max=100000"`
	RevisionNote string `json:"revisionNote" validate:"max=500"`
}

type DispositionInput struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// SubmitResult is the answer as written plus the version it appended.
type SubmitResult struct {
	Answer  AnswerView  `json:"answer"`
	Version VersionView `json:"version"`
	Created bool        `json:"created"`
}

// SubmitAnswer creates the caller's answer on a question, or revises it
// when one already exists. Writes are conditional on the state that was
// read; a lost race re-reads and tries again.
func (s *Service) SubmitAnswer(ctx context.Context, caller workflow.Caller, questionID string, input SubmitInput) (SubmitResult, error) {
	if err := workflow.Authorize(caller, rbac.ActionSubmitAnswer); err != nil {
		return SubmitResult{}, err
	}
	input.RevisionNote = strings.TrimSpace(input.RevisionNote)
	if strings.TrimSpace(input.Content) == "" {
		input.Content = ""
	}
	if err := validateInput(input); err != nil {
		return SubmitResult{}, err
	}
	q, err := s.visibleQuestion(ctx, caller, questionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := workflow.CheckSubmissionWindow(q.Status, q.Deadline, s.clock()); err != nil {
		return SubmitResult{}, err
	}

	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		existing, err := s.store.FindAnswer(ctx, q.ID, caller.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			result, err := s.createAnswer(ctx, caller, q, input)
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			if errors.Is(err, store.ErrSubmissionClosed) {
				return SubmitResult{}, s.submissionWindowError(ctx, q.ID)
			}
			return result, err
		case err != nil:
			return SubmitResult{}, err
		}

		if err := workflow.CheckRevise(existing.Status, existing.IsLocked); err != nil {
			return SubmitResult{}, err
		}
		result, err := s.reviseAnswer(ctx, caller, q, existing, input)
		if errors.Is(err, store.ErrStale) {
			continue
		}
		if errors.Is(err, store.ErrSubmissionClosed) {
			return SubmitResult{}, s.submissionWindowError(ctx, q.ID)
		}
		return result, err
	}

	s.logger.Warn("answer submission kept losing races", "question_id", q.ID, "submitter_id", caller.ID, "attempts", maxSubmitAttempts)
	return SubmitResult{}, workflow.Conflict("answer is being modified concurrently, try again")
}

// submissionWindowError re-reads a question whose write was refused and
// reports why it no longer takes answers.
func (s *Service) submissionWindowError(ctx context.Context, questionID string) error {
	current, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return notFound(err, "question not found")
	}
	if err := workflow.CheckSubmissionWindow(current.Status, current.Deadline, s.clock()); err != nil {
		return err
	}
	return workflow.InvalidTransition("question is no longer accepting answers")
}

func (s *Service) createAnswer(ctx context.Context, caller workflow.Caller, q store.Question, input SubmitInput) (SubmitResult, error) {
	now := s.clock()
	note := input.RevisionNote
	if note == "" {
		note = initialSubmissionNote
	}
	answer, version, err := s.store.CreateAnswer(ctx, store.Answer{
		ID:            util.NewID("ans"),
		QuestionID:    q.ID,
		SubmitterID:   caller.ID,
		SubmitterName: caller.Name,
		Content:       input.Content,
		CreatedAt:     now,
	}, store.AnswerVersion{
		ID:          util.NewID("ver"),
		Content:     input.Content,
		Note:        note,
		SubmittedAt: now,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	s.record(ctx, caller, workflow.AuditAnswerSubmit, workflow.ResourceAnswer, answer.ID, map[string]any{
		"questionId": q.ID,
		"version":    version.VersionNumber,
	})
	s.notifySubmission(ctx, q, answer, "New answer", "A new answer was submitted to \""+q.Title+"\".")
	return SubmitResult{
		Answer:  answerView(caller, q, answer),
		Version: versionView(version),
		Created: true,
	}, nil
}

func (s *Service) reviseAnswer(ctx context.Context, caller workflow.Caller, q store.Question, existing store.Answer, input SubmitInput) (SubmitResult, error) {
	note := input.RevisionNote
	if note == "" {
		note = revisionNote
	}
	answer, version, err := s.store.ReviseAnswer(ctx, store.Revision{
		AnswerID:             existing.ID,
		QuestionID:           q.ID,
		ExpectedVersionCount: existing.VersionCount,
		VersionID:            util.NewID("ver"),
		Content:              input.Content,
		Note:                 note,
		At:                   s.clock(),
	})
	if err != nil {
		return SubmitResult{}, err
	}

	s.record(ctx, caller, workflow.AuditAnswerRevise, workflow.ResourceAnswer, answer.ID, map[string]any{
		"questionId": q.ID,
		"version":    version.VersionNumber,
	})
	s.notifySubmission(ctx, q, answer, "Answer revised", "An answer to \""+q.Title+"\" was revised.")
	return SubmitResult{
		Answer:  answerView(caller, q, answer),
		Version: versionView(version),
	}, nil
}

func (s *Service) notifySubmission(ctx context.Context, q store.Question, answer store.Answer, title, body string) {
	s.notifier.Notify(ctx, notify.Message{
		RecipientID:  q.OwnerID,
		Type:         workflow.NotifyNewAnswer,
		Title:        title,
		Body:         body,
		Link:         answerLink(q.ID, answer.ID),
		ResourceType: workflow.ResourceAnswer,
		ResourceID:   answer.ID,
		Payload: map[string]any{
			"answerId":      answer.ID,
			"questionId":    q.ID,
			"versionNumber": answer.VersionCount,
		},
	})
	// Question watchers only see that the question has new activity.
	s.notifier.Broadcast(ctx, notify.QuestionScope(q.ID), string(workflow.NotifyNewAnswer), map[string]any{
		"questionId": q.ID,
	})
}

// reviewedAnswer loads an answer for an authority disposition on it.
func (s *Service) reviewedAnswer(ctx context.Context, caller workflow.Caller, answerID string) (store.Question, store.Answer, error) {
	if err := workflow.Authorize(caller, rbac.ActionReviewAnswer); err != nil {
		return store.Question{}, store.Answer{}, err
	}
	answer, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		return store.Question{}, store.Answer{}, notFound(err, "answer not found")
	}
	q, err := s.store.GetQuestion(ctx, answer.QuestionID)
	if err != nil {
		return store.Question{}, store.Answer{}, notFound(err, "question not found")
	}
	if err := workflow.RequireQuestionOwner(caller, q.OwnerID); err != nil {
		return store.Question{}, store.Answer{}, err
	}
	return q, answer, nil
}

// accessibleAnswer loads an answer for either party of the relationship.
func (s *Service) accessibleAnswer(ctx context.Context, caller workflow.Caller, answerID string) (store.Question, store.Answer, workflow.AnswerAccess, error) {
	if err := workflow.Authorize(caller, rbac.ActionViewAnswer); err != nil {
		return store.Question{}, store.Answer{}, workflow.AnswerAccess{}, err
	}
	answer, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		return store.Question{}, store.Answer{}, workflow.AnswerAccess{}, notFound(err, "answer not found")
	}
	q, err := s.store.GetQuestion(ctx, answer.QuestionID)
	if err != nil {
		return store.Question{}, store.Answer{}, workflow.AnswerAccess{}, notFound(err, "question not found")
	}
	access, err := workflow.RequireAnswerAccess(caller, q.OwnerID, answer.SubmitterID)
	if err != nil {
		return store.Question{}, store.Answer{}, access, err
	}
	return q, answer, access, nil
}

func (s *Service) RequestRevision(ctx context.Context, caller workflow.Caller, answerID string, input DispositionInput) (AnswerView, error) {
	body := strings.TrimSpace(input.Reason)
	if body == "" {
		body = "Your answer needs revision."
	}
	return s.disposition(ctx, caller, answerID, input, dispositionRule{
		status: workflow.AnswerRevisionRequested,
		action: workflow.AuditAnswerRequestRevision,
		notice: workflow.NotifyRevisionRequested,
		title:  "Revision requested",
		body:   body,
	})
}

// ApproveAnswer approves and permanently locks an answer.
func (s *Service) ApproveAnswer(ctx context.Context, caller workflow.Caller, answerID string) (AnswerView, error) {
	return s.disposition(ctx, caller, answerID, DispositionInput{}, dispositionRule{
		status: workflow.AnswerApproved,
		lock:   true,
		action: workflow.AuditAnswerApprove,
		notice: workflow.NotifyAnswerApproved,
		title:  "Answer approved",
		body:   "Your answer has been approved.",
	})
}

func (s *Service) RejectAnswer(ctx context.Context, caller workflow.Caller, answerID string, input DispositionInput) (AnswerView, error) {
	body := strings.TrimSpace(input.Reason)
	if body == "" {
		body = "Your answer was rejected."
	}
	return s.disposition(ctx, caller, answerID, input, dispositionRule{
		status: workflow.AnswerRejected,
		action: workflow.AuditAnswerReject,
		notice: workflow.NotifyAnswerRejected,
		title:  "Answer rejected",
		body:   body,
	})
}

type dispositionRule struct {
	status workflow.AnswerStatus
	lock   bool
	action workflow.AuditAction
	notice workflow.NotificationType
	title  string
	body   string
}

func (s *Service) disposition(ctx context.Context, caller workflow.Caller, answerID string, input DispositionInput, rule dispositionRule) (AnswerView, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := validateInput(input); err != nil {
		return AnswerView{}, err
	}
	q, answer, err := s.reviewedAnswer(ctx, caller, answerID)
	if err != nil {
		return AnswerView{}, err
	}
	if err := workflow.CheckDisposition(answer.IsLocked); err != nil {
		return AnswerView{}, err
	}

	now := s.clock()
	ok, err := s.store.DispositionAnswer(ctx, answer.ID, rule.status, input.Reason, rule.lock, now)
	if err != nil {
		return AnswerView{}, err
	}
	if !ok {
		return AnswerView{}, workflow.InvalidTransition("answer is locked")
	}
	answer.Status = rule.status
	answer.StatusReason = input.Reason
	answer.IsLocked = answer.IsLocked || rule.lock
	answer.UpdatedAt = now

	metadata := map[string]any{"questionId": q.ID}
	if input.Reason != "" {
		metadata["reason"] = input.Reason
	}
	s.record(ctx, caller, rule.action, workflow.ResourceAnswer, answer.ID, metadata)
	s.notifier.Notify(ctx, notify.Message{
		RecipientID:  answer.SubmitterID,
		Type:         rule.notice,
		Title:        rule.title,
		Body:         rule.body,
		Link:         answerLink(q.ID, answer.ID),
		ResourceType: workflow.ResourceAnswer,
		ResourceID:   answer.ID,
		Payload: map[string]any{
			"answerId":   answer.ID,
			"questionId": q.ID,
			"status":     string(answer.Status),
		},
	})
	return answerView(caller, q, answer), nil
}

// DeleteAnswer removes an answer that is neither locked nor approved. Only
// the question owner may delete.
func (s *Service) DeleteAnswer(ctx context.Context, caller workflow.Caller, answerID string) error {
	q, answer, err := s.reviewedAnswer(ctx, caller, answerID)
	if err != nil {
		return err
	}
	if err := workflow.CheckAnswerDelete(answer.Status, answer.IsLocked); err != nil {
		return err
	}
	ok, err := s.store.DeleteAnswer(ctx, answer.ID)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.InvalidTransition("approved or locked answers cannot be deleted")
	}
	s.record(ctx, caller, workflow.AuditAnswerDelete, workflow.ResourceAnswer, answer.ID, map[string]any{
		"questionId":  q.ID,
		"submitterId": answer.SubmitterID,
	})
	return nil
}

func (s *Service) GetAnswer(ctx context.Context, caller workflow.Caller, answerID string) (AnswerView, error) {
	q, answer, _, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return AnswerView{}, err
	}
	return answerView(caller, q, answer), nil
}

// ListAnswers returns every answer on the question to its owner, newest
// activity first. Anyone else who can see the question gets only their own.
func (s *Service) ListAnswers(ctx context.Context, caller workflow.Caller, questionID string) ([]AnswerView, error) {
	q, err := s.visibleQuestion(ctx, caller, questionID)
	if err != nil {
		return nil, err
	}
	submitterID := ""
	if caller.ID != q.OwnerID {
		submitterID = caller.ID
	}
	items, err := s.store.ListAnswers(ctx, q.ID, submitterID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})

	views := make([]AnswerView, 0, len(items))
	for _, answer := range items {
		views = append(views, answerView(caller, q, answer))
	}
	return views, nil
}

// ListVersions returns an answer's version history, newest first.
func (s *Service) ListVersions(ctx context.Context, caller workflow.Caller, answerID string) ([]VersionView, error) {
	_, answer, _, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListVersions(ctx, answer.ID)
	if err != nil {
		return nil, err
	}
	views := make([]VersionView, 0, len(items))
	for _, v := range items {
		views = append(views, versionView(v))
	}
	return views, nil
}

func answerLink(questionID, answerID string) string {
	return "/questions/" + questionID + "/answers/" + answerID
}
