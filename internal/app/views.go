package app

import (
	"time"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

// PersonView names a party. Name is the anonymous placeholder when the
// reader may not learn who it is.
type PersonView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CompiledAnswerView struct {
	Content    string     `json:"content"`
	CompiledAt *time.Time `json:"compiledAt"`
	ApprovedAt *time.Time `json:"approvedAt"`
}

type QuestionView struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Tags               []string            `json:"tags"`
	Difficulty         string              `json:"difficulty"`
	TargetGroup        string              `json:"targetGroup"`
	SubmissionDeadline time.Time           `json:"submissionDeadline"`
	AnonymousMode      bool                `json:"anonymousMode"`
	Status             string              `json:"status"`
	Owner              *PersonView         `json:"owner,omitempty"`
	CompiledAnswer     *CompiledAnswerView `json:"compiledAnswer,omitempty"`
	PublishedAt        *time.Time          `json:"publishedAt"`
	ClosedAt           *time.Time          `json:"closedAt"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// questionView applies the anonymity rule: non-owners never receive the
// owner of an anonymous question, and only see the compiled answer once the
// question is completed.
func questionView(caller workflow.Caller, q store.Question) QuestionView {
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	view := QuestionView{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		Tags:               tags,
		Difficulty:         string(q.Difficulty),
		TargetGroup:        q.TargetGroup,
		SubmissionDeadline: q.Deadline,
		AnonymousMode:      q.Anonymous,
		Status:             string(q.Status),
		PublishedAt:        q.PublishedAt,
		ClosedAt:           q.ClosedAt,
		CreatedAt:          q.CreatedAt,
		UpdatedAt:          q.UpdatedAt,
	}
	if !workflow.RedactOwner(caller, q.OwnerID, q.Anonymous) {
		view.Owner = &PersonView{ID: q.OwnerID, Name: q.OwnerName}
	}
	isOwner := caller.ID == q.OwnerID
	if (isOwner && (q.CompiledContent != "" || q.CompiledAt != nil)) || q.Status == workflow.QuestionCompleted {
		view.CompiledAnswer = &CompiledAnswerView{
			Content:    q.CompiledContent,
			CompiledAt: q.CompiledAt,
			ApprovedAt: q.ApprovedAt,
		}
	}
	return view
}

type AnswerView struct {
	ID           string     `json:"id"`
	QuestionID   string     `json:"questionId"`
	Submitter    PersonView `json:"submitter"`
	Content      string     `json:"content"`
	Status       string     `json:"status"`
	IsLocked     bool       `json:"isLocked"`
	VersionCount int        `json:"versionCount"`
	StatusReason string     `json:"statusReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// answerView keeps the submitter id but replaces the display name when the
// question is anonymous and the reader is not its owner.
func answerView(caller workflow.Caller, q store.Question, a store.Answer) AnswerView {
	name := a.SubmitterName
	if workflow.RedactOwner(caller, q.OwnerID, q.Anonymous) {
		name = workflow.AnonymousName
	}
	return AnswerView{
		ID:           a.ID,
		QuestionID:   a.QuestionID,
		Submitter:    PersonView{ID: a.SubmitterID, Name: name},
		Content:      a.Content,
		Status:       string(a.Status),
		IsLocked:     a.IsLocked,
		VersionCount: a.VersionCount,
		StatusReason: a.StatusReason,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type VersionView struct {
	ID            string    `json:"id"`
	AnswerID      string    `json:"answerId"`
	VersionNumber int       `json:"versionNumber"`
	Content       string    `json:"content"`
	RevisionNote  string    `json:"revisionNote"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func versionView(v store.AnswerVersion) VersionView {
	return VersionView{
		ID:            v.ID,
		AnswerID:      v.AnswerID,
		VersionNumber: v.VersionNumber,
		Content:       v.Content,
		RevisionNote:  v.Note,
		SubmittedAt:   v.SubmittedAt,
	}
}

type CommentView struct {
	ID         string     `json:"id"`
	AnswerID   string     `json:"answerId"`
	VersionID  string     `json:"answerVersionId"`
	Author     PersonView `json:"author"`
	Text       string     `json:"text"`
	StartIndex int        `json:"startIndex"`
	EndIndex   int        `json:"endIndex"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// commentView hides the commenting authority's name from non-owners of an
// anonymous question.
func commentView(caller workflow.Caller, q store.Question, c store.InlineComment) CommentView {
	name := c.AuthorName
	if c.AuthorID == q.OwnerID && workflow.RedactOwner(caller, q.OwnerID, q.Anonymous) {
		name = workflow.AnonymousName
	}
	return CommentView{
		ID:         c.ID,
		AnswerID:   c.AnswerID,
		VersionID:  c.VersionID,
		Author:     PersonView{ID: c.AuthorID, Name: name},
		Text:       c.Body,
		StartIndex: c.StartIndex,
		EndIndex:   c.EndIndex,
		Resolved:   c.Resolved,
		ResolvedAt: c.ResolvedAt,
		CreatedAt:  c.CreatedAt,
	}
}

type NotificationView struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Link         string     `json:"link"`
	ResourceType string     `json:"resourceType,omitempty"`
	ResourceID   string     `json:"resourceId,omitempty"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"readAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func notificationView(n store.Notification) NotificationView {
	return NotificationView{
		ID:           n.ID,
		Type:         string(n.Type),
		Title:        n.Title,
		Body:         n.Body,
		Link:         n.Link,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		Read:         n.IsRead,
		ReadAt:       n.ReadAt,
		CreatedAt:    n.CreatedAt,
	}
}

type UserView struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"displayName"`
	Role               string     `json:"role"`
	Group              string     `json:"group"`
	IsActive           bool       `json:"isActive"`
	RegistrationStatus string     `json:"registrationStatus"`
	RegistrationNote   string     `json:"registrationNote,omitempty"`
	ReviewedAt         *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func userView(u store.User) UserView {
	return UserView{
		ID:                 u.ID,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		Role:               u.Role,
		Group:              u.GroupLabel,
		IsActive:           u.IsActive,
		RegistrationStatus: string(u.RegistrationStatus),
		RegistrationNote:   u.RegistrationNote,
		ReviewedAt:         u.ReviewedAt,
		CreatedAt:          u.CreatedAt,
	}
}

type AttachmentView struct {
	ID          string    `json:"id"`
	AnswerID    string    `json:"answerId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func attachmentView(a store.Attachment) AttachmentView {
	return AttachmentView{
		ID:          a.ID,
		AnswerID:    a.AnswerID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		UploadedBy:  a.UploadedBy,
		CreatedAt:   a.CreatedAt,
	}
}
