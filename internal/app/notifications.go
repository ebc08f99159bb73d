package app

import (
	"context"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/workflow"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 50
)

func (s *Service) ListNotifications(ctx context.Context, caller workflow.Caller, unreadOnly bool, limit int) ([]NotificationView, error) {
	if err := workflow.Authorize(caller, rbac.ActionReadNotifications); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	items, err := s.store.ListNotifications(ctx, caller.ID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, notificationView(n))
	}
	return views, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, caller workflow.Caller) (int, error) {
	if err := workflow.Authorize(caller, rbac.ActionReadNotifications); err != nil {
		return 0, err
	}
	return s.store.CountUnreadNotifications(ctx, caller.ID)
}

// MarkNotificationRead is one-way: reading an already-read notification
// returns it unchanged. Another user's notification reads as missing.
func (s *Service) MarkNotificationRead(ctx context.Context, caller workflow.Caller, notificationID string) (NotificationView, error) {
	if err := workflow.Authorize(caller, rbac.ActionReadNotifications); err != nil {
		return NotificationView{}, err
	}
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return NotificationView{}, notFound(err, "notification not found")
	}
	if n.RecipientID != caller.ID {
		return NotificationView{}, workflow.NotFound("notification not found")
	}
	if n.IsRead {
		return notificationView(n), nil
	}

	now := s.clock()
	ok, err := s.store.MarkNotificationRead(ctx, caller.ID, n.ID, now)
	if err != nil {
		return NotificationView{}, err
	}
	if ok {
		n.IsRead = true
		n.ReadAt = &now
		return notificationView(n), nil
	}
	current, err := s.store.GetNotification(ctx, n.ID)
	if err != nil {
		return NotificationView{}, notFound(err, "notification not found")
	}
	return notificationView(current), nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, caller workflow.Caller) (int, error) {
	if err := workflow.Authorize(caller, rbac.ActionReadNotifications); err != nil {
		return 0, err
	}
	return s.store.MarkAllNotificationsRead(ctx, caller.ID, s.clock())
}

// maxWatchedQuestions bounds the question scopes one event stream may join.
const maxWatchedQuestions = 20

// EventScopes returns the live-event scopes a stream for caller listens
// on: the caller's own scope plus each requested question the caller owns,
// can see or has answered.
func (s *Service) EventScopes(ctx context.Context, caller workflow.Caller, questionIDs []string) ([]notify.Scope, error) {
	if err := workflow.Authorize(caller, rbac.ActionReadNotifications); err != nil {
		return nil, err
	}
	if len(questionIDs) > maxWatchedQuestions {
		return nil, workflow.Validation("at most 20 questions can be watched at once")
	}
	scopes := []notify.Scope{notify.UserScope(caller.ID)}
	seen := make(map[string]struct{}, len(questionIDs))
	for _, questionID := range questionIDs {
		if questionID == "" {
			continue
		}
		if _, dup := seen[questionID]; dup {
			continue
		}
		seen[questionID] = struct{}{}

		q, err := s.store.GetQuestion(ctx, questionID)
		if err != nil {
			return nil, notFound(err, "question not found")
		}
		if !workflow.QuestionVisible(caller, q.OwnerID, q.Status, q.TargetGroup) {
			if _, err := s.store.FindAnswer(ctx, q.ID, caller.ID); err != nil {
				return nil, notFound(err, "question not found")
			}
		}
		scopes = append(scopes, notify.QuestionScope(q.ID))
	}
	return scopes, nil
}
