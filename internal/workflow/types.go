// Package workflow holds the closed vocabularies of the review workflow, its
// error taxonomy, the authorization gate and the pure transition rules that
// the service layer applies before every conditional write.
package workflow

type QuestionStatus string

const (
	QuestionDraft     QuestionStatus = "DRAFT"
	QuestionOpen      QuestionStatus = "OPEN"
	QuestionClosed    QuestionStatus = "CLOSED"
	QuestionCompleted QuestionStatus = "COMPLETED"
)

func ParseQuestionStatus(value string) (QuestionStatus, bool) {
	switch QuestionStatus(value) {
	case QuestionDraft, QuestionOpen, QuestionClosed, QuestionCompleted:
		return QuestionStatus(value), true
	default:
		return "", false
	}
}

type AnswerStatus string

const (
	AnswerDraft             AnswerStatus = "DRAFT"
	AnswerSubmitted         AnswerStatus = "SUBMITTED"
	AnswerRevisionRequested AnswerStatus = "REVISION_REQUESTED"
	AnswerApproved          AnswerStatus = "APPROVED"
	AnswerRejected          AnswerStatus = "REJECTED"
)

func ParseAnswerStatus(value string) (AnswerStatus, bool) {
	switch AnswerStatus(value) {
	case AnswerDraft, AnswerSubmitted, AnswerRevisionRequested, AnswerApproved, AnswerRejected:
		return AnswerStatus(value), true
	default:
		return "", false
	}
}

// Revisable reports whether a submitter may replace the answer content.
func (s AnswerStatus) Revisable() bool {
	return s == AnswerDraft || s == AnswerRevisionRequested
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(value string) (Difficulty, bool) {
	switch Difficulty(value) {
	case "":
		return DifficultyMedium, true
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(value), true
	default:
		return "", false
	}
}

type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// NotificationType tags both the durable notification record and the live
// event that mirrors it.
type NotificationType string

const (
	NotifyNewAnswer            NotificationType = "new_answer"
	NotifyRevisionRequested    NotificationType = "revision_requested"
	NotifyAnswerApproved       NotificationType = "answer_approved"
	NotifyAnswerRejected       NotificationType = "answer_rejected"
	NotifyDeadlineReminder     NotificationType = "deadline_reminder"
	NotifyQuestionClosed       NotificationType = "question_closed"
	NotifyQuestionCompleted    NotificationType = "question_completed"
	NotifyInlineComment        NotificationType = "inline_comment"
	NotifyRegistrationApproved NotificationType = "registration_approved"
	NotifyRegistrationRejected NotificationType = "registration_rejected"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyNewAnswer, NotifyRevisionRequested, NotifyAnswerApproved, NotifyAnswerRejected,
		NotifyDeadlineReminder, NotifyQuestionClosed, NotifyQuestionCompleted, NotifyInlineComment,
		NotifyRegistrationApproved, NotifyRegistrationRejected:
		return true
	default:
		return false
	}
}

type AuditAction string

const (
	AuditUserLogin             AuditAction = "user_login"
	AuditUserRegister          AuditAction = "user_register"
	AuditQuestionCreate        AuditAction = "question_create"
	AuditQuestionUpdate        AuditAction = "question_update"
	AuditQuestionPublish       AuditAction = "question_publish"
	AuditQuestionClose         AuditAction = "question_close"
	AuditQuestionComplete      AuditAction = "question_complete"
	AuditQuestionDelete        AuditAction = "question_delete"
	AuditAnswerSubmit          AuditAction = "answer_submit"
	AuditAnswerRevise          AuditAction = "answer_revise"
	AuditAnswerRequestRevision AuditAction = "answer_request_revision"
	AuditAnswerApprove         AuditAction = "answer_approve"
	AuditAnswerReject          AuditAction = "answer_reject"
	AuditAnswerDelete          AuditAction = "answer_delete"
	AuditCommentAdd            AuditAction = "comment_add"
	AuditCommentResolve        AuditAction = "comment_resolve"
	AuditCompilationSave       AuditAction = "compilation_save"
	AuditCompilationApprove    AuditAction = "compilation_approve"
	AuditUserStatusToggle      AuditAction = "user_status_toggle"
	AuditRegistrationApprove   AuditAction = "registration_approve"
	AuditRegistrationReject    AuditAction = "registration_reject"
	AuditAttachmentUpload      AuditAction = "attachment_upload"
)

type ResourceType string

const (
	ResourceUser          ResourceType = "User"
	ResourceQuestion      ResourceType = "Question"
	ResourceAnswer        ResourceType = "Answer"
	ResourceAnswerVersion ResourceType = "AnswerVersion"
	ResourceInlineComment ResourceType = "InlineComment"
	ResourceAttachment    ResourceType = "Attachment"
)
