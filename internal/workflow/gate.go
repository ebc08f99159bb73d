package workflow

import "answerdesk/api/internal/rbac"

// Caller is the resolved identity of the party invoking an operation.
type Caller struct {
	ID     string
	Name   string
	Role   rbac.Role
	Group  string
	Active bool
}

// Authorize applies the role predicate. An inactive or unknown identity is
// always denied.
func Authorize(caller Caller, action rbac.Action) error {
	if caller.ID == "" || !caller.Active {
		return Forbidden("caller is not an active user")
	}
	if !rbac.Can(caller.Role, action) {
		return Forbidden(string(caller.Role) + " may not " + string(action))
	}
	return nil
}

// AnswerAccess is the outcome of the relationship predicate over one Answer.
type AnswerAccess struct {
	IsOwner  bool
	IsAuthor bool
}

func (a AnswerAccess) Allowed() bool {
	return a.IsOwner || a.IsAuthor
}

// ResolveAnswerAccess evaluates whether caller is the question's authority
// owner or the answer's submitter.
func ResolveAnswerAccess(caller Caller, questionOwnerID, submitterID string) AnswerAccess {
	return AnswerAccess{
		IsOwner:  caller.ID != "" && caller.ID == questionOwnerID,
		IsAuthor: caller.ID != "" && caller.ID == submitterID,
	}
}

// RequireAnswerAccess fails with Conflict when caller is neither party.
func RequireAnswerAccess(caller Caller, questionOwnerID, submitterID string) (AnswerAccess, error) {
	access := ResolveAnswerAccess(caller, questionOwnerID, submitterID)
	if !access.Allowed() {
		return access, Conflict("caller is neither the question owner nor the answer author")
	}
	return access, nil
}

// RequireQuestionOwner gates authority-side writes on a question.
func RequireQuestionOwner(caller Caller, ownerID string) error {
	if caller.ID == "" || caller.ID != ownerID {
		return Conflict("caller does not own this question")
	}
	return nil
}

// QuestionVisible applies the non-owner visibility rule. Owners always see
// their own questions.
func QuestionVisible(caller Caller, ownerID string, status QuestionStatus, targetGroup string) bool {
	if caller.ID == ownerID {
		return true
	}
	if caller.Role != rbac.RoleSubmitter {
		return false
	}
	if status != QuestionOpen && status != QuestionClosed {
		return false
	}
	return targetGroup == "" || targetGroup == caller.Group
}

// RedactOwner reports whether the owner's identity must be stripped from a
// payload served to caller.
func RedactOwner(caller Caller, ownerID string, anonymous bool) bool {
	return anonymous && caller.ID != ownerID
}

// AnonymousName replaces author display names for non-owner readers of an
// anonymous question.
const AnonymousName = "Anonymous"
