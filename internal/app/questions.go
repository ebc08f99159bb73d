package app

import (
	"context"
	"strings"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

const maxTags = 20

type QuestionInput struct {
	Title              string   `json:"title" validate:"required,max=500"`
	Description        string   `json:"description" validate:"required,max=20000"`
	Tags               []string `json:"tags" validate:"max=20,dive,max=50"`
	Difficulty         string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	TargetGroup        string   `json:"targetGroup" validate:"max=100"`
	SubmissionDeadline string   `json:"submissionDeadline" validate:"required"`
	AnonymousMode      bool     `json:"anonymousMode"`
}

func (in *QuestionInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Difficulty = strings.TrimSpace(in.Difficulty)
	in.TargetGroup = strings.TrimSpace(in.TargetGroup)

	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]struct{}, len(in.Tags))
	for _, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	in.Tags = tags
}

// applyQuestionInput validates input and copies it onto q.
func (s *Service) applyQuestionInput(q *store.Question, input QuestionInput) error {
	input.normalize()
	if err := validateInput(input); err != nil {
		return err
	}
	if len(input.Tags) > maxTags {
		return workflow.Validation("tags must be at most 20 items")
	}
	difficulty, ok := workflow.ParseDifficulty(input.Difficulty)
	if !ok {
		return workflow.Validation("difficulty must be one of: easy, medium, hard")
	}
	deadline, err := parseDeadline(input.SubmissionDeadline)
	if err != nil {
		return err
	}
	if err := workflow.CheckDeadline(deadline, s.clock()); err != nil {
		return err
	}

	q.Title = input.Title
	q.Description = input.Description
	q.Tags = input.Tags
	q.Difficulty = difficulty
	q.TargetGroup = input.TargetGroup
	q.Deadline = deadline
	q.Anonymous = input.AnonymousMode
	return nil
}

func (s *Service) CreateQuestion(ctx context.Context, caller workflow.Caller, input QuestionInput) (QuestionView, error) {
	if err := workflow.Authorize(caller, rbac.ActionCreateQuestion); err != nil {
		return QuestionView{}, err
	}
	now := s.clock()
	q := store.Question{
		ID:        util.NewID("qst"),
		OwnerID:   caller.ID,
		OwnerName: caller.Name,
		Status:    workflow.QuestionDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyQuestionInput(&q, input); err != nil {
		return QuestionView{}, err
	}
	if err := s.store.InsertQuestion(ctx, q); err != nil {
		return QuestionView{}, err
	}

	s.record(ctx, caller, workflow.AuditQuestionCreate, workflow.ResourceQuestion, q.ID, map[string]any{"title": q.Title})
	s.index.IndexQuestion(search.RecordFor(q))
	return questionView(caller, q), nil
}

// ownedQuestion loads a question for an authority-side write.
func (s *Service) ownedQuestion(ctx context.Context, caller workflow.Caller, questionID string) (store.Question, error) {
	if err := workflow.Authorize(caller, rbac.ActionManageQuestion); err != nil {
		return store.Question{}, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return store.Question{}, notFound(err, "question not found")
	}
	if err := workflow.RequireQuestionOwner(caller, q.OwnerID); err != nil {
		return store.Question{}, err
	}
	return q, nil
}

// visibleQuestion loads a question the caller may read. Questions outside
// the caller's visibility read as missing.
func (s *Service) visibleQuestion(ctx context.Context, caller workflow.Caller, questionID string) (store.Question, error) {
	if err := workflow.Authorize(caller, rbac.ActionViewQuestions); err != nil {
		return store.Question{}, err
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return store.Question{}, notFound(err, "question not found")
	}
	if !workflow.QuestionVisible(caller, q.OwnerID, q.Status, q.TargetGroup) {
		return store.Question{}, workflow.NotFound("question not found")
	}
	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, caller workflow.Caller, questionID string, input QuestionInput) (QuestionView, error) {
	q, err := s.ownedQuestion(ctx, caller, questionID)
	if err != nil {
		return QuestionView{}, err
	}
	if err := workflow.CheckQuestionEditable(q.Status); err != nil {
		return QuestionView{}, err
	}
	if err := s.applyQuestionInput(&q, input); err != nil {
		return QuestionView{}, err
	}
	q.UpdatedAt = s.clock()

	ok, err := s.store.UpdateDraftQuestion(ctx, q)
	if err != nil {
		return QuestionView{}, err
	}
	if !ok {
		return QuestionView{}, workflow.InvalidTransition("only draft questions can be edited")
	}

	s.record(ctx, caller, workflow.AuditQuestionUpdate, workflow.ResourceQuestion, q.ID, nil)
	s.index.IndexQuestion(search.RecordFor(q))
	return questionView(caller, q), nil
}

func (s *Service) PublishQuestion(ctx context.Context, caller workflow.Caller, questionID string) (QuestionView, error) {
	return s.transitionQuestion(ctx, caller, questionID, workflow.QuestionDraft, workflow.QuestionOpen)
}

// CloseQuestion closes an open question ahead of its deadline. Subscribers
// watching the question get a live event; no notification row is written.
func (s *Service) CloseQuestion(ctx context.Context, caller workflow.Caller, questionID string) (QuestionView, error) {
	view, err := s.transitionQuestion(ctx, caller, questionID, workflow.QuestionOpen, workflow.QuestionClosed)
	if err != nil {
		return QuestionView{}, err
	}
	s.notifier.Broadcast(ctx, notify.QuestionScope(questionID), string(workflow.NotifyQuestionClosed), map[string]any{
		"questionId": questionID,
		"title":      view.Title,
	})
	return view, nil
}

func (s *Service) transitionQuestion(ctx context.Context, caller workflow.Caller, questionID string, from, to workflow.QuestionStatus) (QuestionView, error) {
	q, err := s.ownedQuestion(ctx, caller, questionID)
	if err != nil {
		return QuestionView{}, err
	}
	check, action := workflow.CheckPublish, workflow.AuditQuestionPublish
	if to == workflow.QuestionClosed {
		check, action = workflow.CheckClose, workflow.AuditQuestionClose
	}
	if err := check(q.Status); err != nil {
		return QuestionView{}, err
	}

	now := s.clock()
	ok, err := s.store.TransitionQuestion(ctx, q.ID, from, to, now)
	if err != nil {
		return QuestionView{}, err
	}
	if !ok {
		// Lost a race with another transition; re-read to report the real state.
		current, err := s.store.GetQuestion(ctx, q.ID)
		if err != nil {
			return QuestionView{}, notFound(err, "question not found")
		}
		if err := check(current.Status); err != nil {
			return QuestionView{}, err
		}
		return QuestionView{}, workflow.Conflict("question changed concurrently")
	}

	q.Status = to
	q.UpdatedAt = now
	if to == workflow.QuestionOpen {
		q.PublishedAt = &now
	} else {
		q.ClosedAt = &now
	}
	s.record(ctx, caller, action, workflow.ResourceQuestion, q.ID, map[string]any{"from": string(from), "to": string(to)})
	s.index.IndexQuestion(search.RecordFor(q))
	return questionView(caller, q), nil
}

func (s *Service) DeleteQuestion(ctx context.Context, caller workflow.Caller, questionID string) error {
	q, err := s.ownedQuestion(ctx, caller, questionID)
	if err != nil {
		return err
	}
	count, err := s.store.CountAnswers(ctx, q.ID)
	if err != nil {
		return err
	}
	if err := workflow.CheckQuestionDelete(q.Status, count); err != nil {
		return err
	}
	ok, err := s.store.DeleteQuestion(ctx, q.ID)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.Conflict("question changed and can no longer be deleted")
	}

	s.record(ctx, caller, workflow.AuditQuestionDelete, workflow.ResourceQuestion, q.ID, map[string]any{"title": q.Title})
	s.index.DeleteQuestion(q.ID)
	return nil
}

func (s *Service) GetQuestion(ctx context.Context, caller workflow.Caller, questionID string) (QuestionView, error) {
	q, err := s.visibleQuestion(ctx, caller, questionID)
	if err != nil {
		return QuestionView{}, err
	}
	return questionView(caller, q), nil
}

// ListQuestions lists an authority's own questions, optionally by status.
// Submitters get the open listing instead.
func (s *Service) ListQuestions(ctx context.Context, caller workflow.Caller, status string) ([]QuestionView, error) {
	if caller.Role == rbac.RoleSubmitter {
		return s.ListOpenQuestions(ctx, caller)
	}
	if err := workflow.Authorize(caller, rbac.ActionManageQuestion); err != nil {
		return nil, err
	}
	filter := store.QuestionFilter{OwnerID: caller.ID}
	if status != "" {
		parsed, ok := workflow.ParseQuestionStatus(strings.ToUpper(status))
		if !ok {
			return nil, workflow.Validation("status must be one of: DRAFT, OPEN, CLOSED, COMPLETED")
		}
		filter.Status = parsed
	}
	items, err := s.store.ListQuestions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.questionViews(caller, items), nil
}

// ListOpenQuestions returns OPEN questions still accepting answers in the
// caller's group.
func (s *Service) ListOpenQuestions(ctx context.Context, caller workflow.Caller) ([]QuestionView, error) {
	if err := workflow.Authorize(caller, rbac.ActionSubmitAnswer); err != nil {
		return nil, err
	}
	now := s.clock()
	items, err := s.store.ListQuestions(ctx, store.QuestionFilter{
		Status:        workflow.QuestionOpen,
		Group:         caller.Group,
		DeadlineAfter: &now,
	})
	if err != nil {
		return nil, err
	}
	return s.questionViews(caller, s.filterVisible(caller, items)), nil
}

// ListAnsweredQuestions returns questions the caller holds an answer on
// that are still visible to them.
func (s *Service) ListAnsweredQuestions(ctx context.Context, caller workflow.Caller) ([]QuestionView, error) {
	if err := workflow.Authorize(caller, rbac.ActionSubmitAnswer); err != nil {
		return nil, err
	}
	items, err := s.store.ListQuestions(ctx, store.QuestionFilter{AnsweredBy: caller.ID})
	if err != nil {
		return nil, err
	}
	return s.questionViews(caller, s.filterVisible(caller, items)), nil
}

func (s *Service) SearchQuestions(ctx context.Context, caller workflow.Caller, text string, limit, offset int) (search.Response, error) {
	if err := workflow.Authorize(caller, rbac.ActionViewQuestions); err != nil {
		return search.Response{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, workflow.Validation("q is required")
	}
	query := search.Query{Text: text, Limit: limit, Offset: offset}
	if caller.Role == rbac.RoleAuthority {
		query.OwnerID = caller.ID
	} else {
		query.Statuses = []string{string(workflow.QuestionOpen), string(workflow.QuestionClosed)}
		query.Group = caller.Group
		query.GroupFilter = true
	}
	return s.index.Search(ctx, query), nil
}

func (s *Service) filterVisible(caller workflow.Caller, items []store.Question) []store.Question {
	visible := make([]store.Question, 0, len(items))
	for _, q := range items {
		if workflow.QuestionVisible(caller, q.OwnerID, q.Status, q.TargetGroup) {
			visible = append(visible, q)
		}
	}
	return visible
}

func (s *Service) questionViews(caller workflow.Caller, items []store.Question) []QuestionView {
	views := make([]QuestionView, 0, len(items))
	for _, q := range items {
		views = append(views, questionView(caller, q))
	}
	return views
}
