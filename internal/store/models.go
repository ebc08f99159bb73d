package store

import (
	"time"

	"answerdesk/api/internal/workflow"
)

type User struct {
	ID                 string
	Email              string
	DisplayName        string
	PasswordHash       string
	Role               string
	GroupLabel         string
	IsActive           bool
	RegistrationStatus workflow.RegistrationStatus
	RegistrationNote   string
	ReviewedBy         string
	ReviewedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Question struct {
	ID              string
	OwnerID         string
	OwnerName       string
	Title           string
	Description     string
	Tags            []string
	Difficulty      workflow.Difficulty
	TargetGroup     string
	Deadline        time.Time
	Anonymous       bool
	Status          workflow.QuestionStatus
	CompiledContent string
	CompiledAt      *time.Time
	ApprovedAt      *time.Time
	PublishedAt     *time.Time
	ClosedAt        *time.Time
	ReminderSentAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QuestionFilter narrows ListQuestions. Zero values mean "no constraint".
type QuestionFilter struct {
	OwnerID       string
	Status        workflow.QuestionStatus
	Statuses      []workflow.QuestionStatus
	Group         string
	AnsweredBy    string
	DeadlineAfter *time.Time
	Limit         int
}

type Answer struct {
	ID            string
	QuestionID    string
	SubmitterID   string
	SubmitterName string
	Content       string
	Status        workflow.AnswerStatus
	IsLocked      bool
	VersionCount  int
	StatusReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AnswerVersion struct {
	ID            string
	AnswerID      string
	VersionNumber int
	Content       string
	Note          string
	SubmittedAt   time.Time
}

// Revision describes one optimistic content replacement of an existing
// answer. ExpectedVersionCount is the version count the caller observed.
type Revision struct {
	AnswerID             string
	QuestionID           string
	ExpectedVersionCount int
	VersionID            string
	Content              string
	Note                 string
	At                   time.Time
}

type InlineComment struct {
	ID         string
	AnswerID   string
	VersionID  string
	AuthorID   string
	AuthorName string
	Body       string
	StartIndex int
	EndIndex   int
	Resolved   bool
	ResolvedAt *time.Time
	ResolvedBy string
	CreatedAt  time.Time
}

type Notification struct {
	ID           string
	RecipientID  string
	Type         workflow.NotificationType
	Title        string
	Body         string
	Link         string
	ResourceType string
	ResourceID   string
	IsRead       bool
	ReadAt       *time.Time
	CreatedAt    time.Time
}

type AuditEntry struct {
	ID           int64
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	IP           string
	UserAgent    string
	CreatedAt    time.Time
}

type Attachment struct {
	ID          string
	AnswerID    string
	FileRef     string
	Filename    string
	ContentType string
	SizeBytes   int64
	UploadedBy  string
	CreatedAt   time.Time
}
