package app

import (
	"context"
	"strings"

	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/workflow"
)

type RegistrationDecision struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (s *Service) ListPendingRegistrations(ctx context.Context, caller workflow.Caller) ([]UserView, error) {
	if err := workflow.Authorize(caller, rbac.ActionManageUsers); err != nil {
		return nil, err
	}
	items, err := s.store.ListPendingRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(items))
	for _, u := range items {
		views = append(views, userView(u))
	}
	return views, nil
}

func (s *Service) ApproveRegistration(ctx context.Context, caller workflow.Caller, userID string) (UserView, error) {
	return s.decideRegistration(ctx, caller, userID, workflow.RegistrationApproved, "")
}

func (s *Service) RejectRegistration(ctx context.Context, caller workflow.Caller, userID string, input RegistrationDecision) (UserView, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := validateInput(input); err != nil {
		return UserView{}, err
	}
	return s.decideRegistration(ctx, caller, userID, workflow.RegistrationRejected, input.Reason)
}

// decideRegistration settles a pending registration exactly once.
func (s *Service) decideRegistration(ctx context.Context, caller workflow.Caller, userID string, status workflow.RegistrationStatus, reason string) (UserView, error) {
	if err := workflow.Authorize(caller, rbac.ActionManageUsers); err != nil {
		return UserView{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return UserView{}, notFound(err, "user not found")
	}
	if user.RegistrationStatus != workflow.RegistrationPending {
		return UserView{}, workflow.InvalidTransition("registration is already " + string(user.RegistrationStatus))
	}

	now := s.clock()
	ok, err := s.store.SetRegistrationStatus(ctx, user.ID, status, reason, caller.ID, now)
	if err != nil {
		return UserView{}, err
	}
	if !ok {
		return UserView{}, workflow.InvalidTransition("registration was already decided")
	}
	user.RegistrationStatus = status
	user.RegistrationNote = reason
	user.ReviewedBy = caller.ID
	user.ReviewedAt = &now
	user.IsActive = status == workflow.RegistrationApproved

	msg := notify.Message{
		RecipientID:  user.ID,
		Type:         workflow.NotifyRegistrationApproved,
		Title:        "Registration Approved",
		Body:         "Your registration has been approved. You can now sign in.",
		ResourceType: workflow.ResourceUser,
		ResourceID:   user.ID,
	}
	action := workflow.AuditRegistrationApprove
	if status == workflow.RegistrationRejected {
		msg.Type = workflow.NotifyRegistrationRejected
		msg.Title = "Registration Rejected"
		msg.Body = "Your registration was rejected."
		if reason != "" {
			msg.Body = "Your registration was rejected: " + reason
		}
		action = workflow.AuditRegistrationReject
	}

	s.record(ctx, caller, action, workflow.ResourceUser, user.ID, map[string]any{"reason": reason})
	s.notifier.Notify(ctx, msg)
	return userView(user), nil
}

// SetUserActive deactivates or reactivates an account. Deactivation revokes
// the user's refresh sessions; outstanding access tokens stop resolving
// because the caller lookup rejects inactive users.
func (s *Service) SetUserActive(ctx context.Context, caller workflow.Caller, userID string, active bool) (UserView, error) {
	if err := workflow.Authorize(caller, rbac.ActionManageUsers); err != nil {
		return UserView{}, err
	}
	if userID == caller.ID && !active {
		return UserView{}, workflow.Conflict("you cannot deactivate your own account")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return UserView{}, notFound(err, "user not found")
	}
	if active && user.RegistrationStatus != workflow.RegistrationApproved {
		return UserView{}, workflow.InvalidTransition("only approved accounts can be activated")
	}

	ok, err := s.store.SetUserActive(ctx, user.ID, active, s.clock())
	if err != nil {
		return UserView{}, err
	}
	if !ok {
		return UserView{}, workflow.NotFound("user not found")
	}
	user.IsActive = active
	if !active {
		if err := s.sessions.RevokeUserSessions(ctx, user.ID); err != nil {
			s.logger.Warn("revoke sessions of deactivated user", "user_id", user.ID, "error", err)
		}
	}

	s.record(ctx, caller, workflow.AuditUserStatusToggle, workflow.ResourceUser, user.ID, map[string]any{"isActive": active})
	return userView(user), nil
}
