package app

import (
	"context"
	"strings"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

type CommentInput struct {
	Text       string `json:"text" validate:"required,max=5000"`
	StartIndex *int   `json:"startIndex" validate:"required"`
	EndIndex   *int   `json:"endIndex" validate:"required"`
	VersionID  string `json:"answerVersionId"`
}

// AddComment anchors authority feedback to a character range of one answer
// version, the latest one unless VersionID names another.
func (s *Service) AddComment(ctx context.Context, caller workflow.Caller, answerID string, input CommentInput) (CommentView, error) {
	input.Text = strings.TrimSpace(input.Text)
	input.VersionID = strings.TrimSpace(input.VersionID)
	if err := validateInput(input); err != nil {
		return CommentView{}, err
	}
	q, answer, err := s.reviewedAnswer(ctx, caller, answerID)
	if err != nil {
		return CommentView{}, err
	}

	var version store.AnswerVersion
	if input.VersionID != "" {
		version, err = s.store.GetVersion(ctx, input.VersionID)
		if err == nil && version.AnswerID != answer.ID {
			err = store.ErrNotFound
		}
	} else {
		version, err = s.store.LatestVersion(ctx, answer.ID)
	}
	if err != nil {
		return CommentView{}, notFound(err, "answer version not found")
	}
	if err := workflow.CheckCommentRange(*input.StartIndex, *input.EndIndex, version.Content); err != nil {
		return CommentView{}, err
	}

	comment := store.InlineComment{
		ID:         util.NewID("cmt"),
		AnswerID:   answer.ID,
		VersionID:  version.ID,
		AuthorID:   caller.ID,
		AuthorName: caller.Name,
		Body:       input.Text,
		StartIndex: *input.StartIndex,
		EndIndex:   *input.EndIndex,
		CreatedAt:  s.clock(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return CommentView{}, err
	}

	s.record(ctx, caller, workflow.AuditCommentAdd, workflow.ResourceInlineComment, comment.ID, map[string]any{
		"answerId":      answer.ID,
		"versionNumber": version.VersionNumber,
	})
	s.notifier.Notify(ctx, notify.Message{
		RecipientID:  answer.SubmitterID,
		Type:         workflow.NotifyInlineComment,
		Title:        "New feedback",
		Body:         "You have new inline feedback on your answer.",
		Link:         answerLink(q.ID, answer.ID),
		ResourceType: workflow.ResourceInlineComment,
		ResourceID:   comment.ID,
		Payload: map[string]any{
			"commentId": comment.ID,
			"answerId":  answer.ID,
		},
	})
	return commentView(caller, q, comment), nil
}

// ListComments returns an answer's feedback in creation order, optionally
// restricted to one version. Resolved comments are included.
func (s *Service) ListComments(ctx context.Context, caller workflow.Caller, answerID, versionID string) ([]CommentView, error) {
	q, answer, _, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListComments(ctx, answer.ID, strings.TrimSpace(versionID))
	if err != nil {
		return nil, err
	}
	views := make([]CommentView, 0, len(items))
	for _, c := range items {
		views = append(views, commentView(caller, q, c))
	}
	return views, nil
}

// ResolveComment marks feedback resolved. Either party may resolve, and
// resolving twice leaves the first resolution in place.
func (s *Service) ResolveComment(ctx context.Context, caller workflow.Caller, commentID string) (CommentView, error) {
	if err := workflow.Authorize(caller, rbac.ActionResolveComment); err != nil {
		return CommentView{}, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return CommentView{}, notFound(err, "comment not found")
	}
	q, _, _, err := s.accessibleAnswer(ctx, caller, comment.AnswerID)
	if err != nil {
		return CommentView{}, err
	}
	if comment.Resolved {
		return commentView(caller, q, comment), nil
	}

	ok, err := s.store.ResolveComment(ctx, comment.ID, caller.ID, s.clock())
	if err != nil {
		return CommentView{}, err
	}
	// Whether or not this call won, the stored row is the answer.
	current, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return CommentView{}, notFound(err, "comment not found")
	}
	if ok {
		s.record(ctx, caller, workflow.AuditCommentResolve, workflow.ResourceInlineComment, comment.ID, map[string]any{
			"answerId": comment.AnswerID,
		})
	}
	return commentView(caller, q, current), nil
}
