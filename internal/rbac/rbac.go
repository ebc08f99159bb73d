package rbac

type Role string
type Action string

const (
	RoleAuthority Role = "authority"
	RoleSubmitter Role = "submitter"
)

const (
	ActionViewQuestions     Action = "view_questions"
	ActionCreateQuestion    Action = "create_question"
	ActionManageQuestion    Action = "manage_question"
	ActionSubmitAnswer      Action = "submit_answer"
	ActionReviewAnswer      Action = "review_answer"
	ActionViewAnswer        Action = "view_answer"
	ActionResolveComment    Action = "resolve_comment"
	ActionManageUsers       Action = "manage_users"
	ActionReadNotifications Action = "read_notifications"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAuthority:
		switch action {
		case ActionViewQuestions, ActionCreateQuestion, ActionManageQuestion, ActionReviewAnswer,
			ActionViewAnswer, ActionResolveComment, ActionManageUsers, ActionReadNotifications:
			return true
		}
		return false
	case RoleSubmitter:
		switch action {
		case ActionViewQuestions, ActionSubmitAnswer, ActionViewAnswer, ActionResolveComment, ActionReadNotifications:
			return true
		}
		return false
	default:
		return false
	}
}

// Parse reports whether role names one of the two structural roles.
func Parse(role string) (Role, bool) {
	switch Role(role) {
	case RoleAuthority, RoleSubmitter:
		return Role(role), true
	default:
		return "", false
	}
}
