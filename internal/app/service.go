package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"answerdesk/api/internal/attachment"
	"answerdesk/api/internal/audit"
	"answerdesk/api/internal/authpw"
	"answerdesk/api/internal/config"
	"answerdesk/api/internal/export"
	"answerdesk/api/internal/notify"
	"answerdesk/api/internal/rbac"
	"answerdesk/api/internal/search"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

// maxSubmitAttempts bounds the optimistic retry loop around answer writes.
const maxSubmitAttempts = 8

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListPendingRegistrations(context.Context) ([]store.User, error)
	SetRegistrationStatus(context.Context, string, workflow.RegistrationStatus, string, string, time.Time) (bool, error)
	SetUserActive(context.Context, string, bool, time.Time) (bool, error)

	InsertQuestion(context.Context, store.Question) error
	GetQuestion(context.Context, string) (store.Question, error)
	ListQuestions(context.Context, store.QuestionFilter) ([]store.Question, error)
	UpdateDraftQuestion(context.Context, store.Question) (bool, error)
	TransitionQuestion(context.Context, string, workflow.QuestionStatus, workflow.QuestionStatus, time.Time) (bool, error)
	DeleteQuestion(context.Context, string) (bool, error)
	CountAnswers(context.Context, string) (int, error)
	SaveCompilation(context.Context, string, string, time.Time) (bool, error)
	ApproveCompilation(context.Context, string, time.Time) (int, bool, error)

	GetAnswer(context.Context, string) (store.Answer, error)
	FindAnswer(context.Context, string, string) (store.Answer, error)
	ListAnswers(context.Context, string, string) ([]store.Answer, error)
	CreateAnswer(context.Context, store.Answer, store.AnswerVersion) (store.Answer, store.AnswerVersion, error)
	ReviseAnswer(context.Context, store.Revision) (store.Answer, store.AnswerVersion, error)
	DispositionAnswer(context.Context, string, workflow.AnswerStatus, string, bool, time.Time) (bool, error)
	DeleteAnswer(context.Context, string) (bool, error)
	ListVersions(context.Context, string) ([]store.AnswerVersion, error)
	GetVersion(context.Context, string) (store.AnswerVersion, error)
	LatestVersion(context.Context, string) (store.AnswerVersion, error)

	InsertComment(context.Context, store.InlineComment) error
	GetComment(context.Context, string) (store.InlineComment, error)
	ListComments(context.Context, string, string) ([]store.InlineComment, error)
	ResolveComment(context.Context, string, string, time.Time) (bool, error)

	InsertNotification(context.Context, store.Notification) error
	GetNotification(context.Context, string) (store.Notification, error)
	ListNotifications(context.Context, string, bool, int) ([]store.Notification, error)
	CountUnreadNotifications(context.Context, string) (int, error)
	MarkNotificationRead(context.Context, string, string, time.Time) (bool, error)
	MarkAllNotificationsRead(context.Context, string, time.Time) (int, error)

	InsertAuditEntry(context.Context, store.AuditEntry) error

	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	CountAttachments(context.Context, string) (int, error)
}

// sessionStore holds refresh sessions and revoked access tokens. Both the
// Redis store and the Postgres store satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeUserSessions(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, msg notify.Message)
	Broadcast(ctx context.Context, scope notify.Scope, event string, payload map[string]any)
}

type questionIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexQuestion(rec search.QuestionRecord)
	DeleteQuestion(id string)
}

type compilationExporter interface {
	CompilationPDF(ctx context.Context, c export.Compilation) (*export.Result, error)
}

// Dependencies carries the optional collaborators. Nil fields fall back to
// working defaults: sessions live in Store, the index is disabled and
// attachments are unavailable.
type Dependencies struct {
	Sessions    sessionStore
	Publisher   notify.Publisher
	Search      *search.Service
	Attachments attachment.Store
	Exporter    *export.Service
	Logger      *slog.Logger
}

type Service struct {
	cfg         config.Config
	store       dataStore
	sessions    sessionStore
	auth        *authpw.Service
	notifier    notifier
	audit       *audit.Recorder
	index       questionIndex
	attachments attachment.Store
	exporter    compilationExporter
	logger      *slog.Logger
	now         func() time.Time
}

// New wires the workflow service. data must also satisfy sessionStore
// when deps.Sessions is nil (the Postgres store does).
func New(cfg config.Config, data *store.PostgresStore, deps Dependencies) *Service {
	return newService(cfg, data, deps)
}

func newService(cfg config.Config, data dataStore, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:         cfg,
		store:       data,
		sessions:    deps.Sessions,
		auth:        authpw.NewService(data, cfg.RequireRegistrationApproval),
		notifier:    notify.NewService(data, deps.Publisher, logger),
		audit:       audit.NewRecorder(data, logger),
		index:       noopIndex{},
		attachments: deps.Attachments,
		logger:      logger,
		now:         time.Now,
	}
	if s.sessions == nil {
		if ss, ok := data.(sessionStore); ok {
			s.sessions = ss
		}
	}
	if deps.Search != nil {
		s.index = deps.Search
	}
	if deps.Exporter != nil {
		s.exporter = deps.Exporter
	} else {
		s.exporter = export.NewService(logger)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Can applies the role predicate for handlers that gate before decoding.
func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func (s *Service) record(ctx context.Context, caller workflow.Caller, action workflow.AuditAction, resourceType workflow.ResourceType, resourceID string, metadata map[string]any) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:      caller.ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// notFound converts a store miss into the taxonomy error and passes every
// other error through.
func notFound(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return workflow.NotFound(message)
	}
	return err
}

type noopIndex struct{}

func (noopIndex) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (noopIndex) IndexQuestion(search.QuestionRecord) {}

func (noopIndex) DeleteQuestion(string) {}
