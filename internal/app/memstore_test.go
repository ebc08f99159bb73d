package app

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

// memStore is an in-memory dataStore and sessionStore. Conditional updates
// mirror the WHERE clauses of the Postgres store so the service's race
// handling can be exercised without a database.
type memStore struct {
	mu sync.Mutex

	pingErr error

	users         map[string]store.User
	questions     map[string]store.Question
	answers       map[string]store.Answer
	versions      map[string]store.AnswerVersion
	comments      map[string]store.InlineComment
	notifications map[string]store.Notification
	attachments   map[string]store.Attachment
	audit         []store.AuditEntry

	refresh map[string]memRefresh
	revoked map[string]time.Time

	// seq orders rows created within the same clock tick.
	seq   int
	order map[string]int
}

type memRefresh struct {
	userID    string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]store.User),
		questions:     make(map[string]store.Question),
		answers:       make(map[string]store.Answer),
		versions:      make(map[string]store.AnswerVersion),
		comments:      make(map[string]store.InlineComment),
		notifications: make(map[string]store.Notification),
		attachments:   make(map[string]store.Attachment),
		refresh:       make(map[string]memRefresh),
		revoked:       make(map[string]time.Time),
		order:         make(map[string]int),
	}
}

func (m *memStore) stamp(id string) {
	m.seq++
	m.order[id] = m.seq
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return store.User{}, store.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	m.stamp(user.ID)
	return user, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) ListPendingRegistrations(context.Context) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.User, 0)
	for _, user := range m.users {
		if user.RegistrationStatus == workflow.RegistrationPending {
			items = append(items, user)
		}
	}
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] < m.order[items[j].ID] })
	return items, nil
}

func (m *memStore) SetRegistrationStatus(_ context.Context, userID string, status workflow.RegistrationStatus, note, reviewerID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.RegistrationStatus != workflow.RegistrationPending {
		return false, nil
	}
	user.RegistrationStatus = status
	user.RegistrationNote = note
	user.ReviewedBy = reviewerID
	user.ReviewedAt = &at
	user.IsActive = status == workflow.RegistrationApproved
	user.UpdatedAt = at
	m.users[userID] = user
	return true, nil
}

func (m *memStore) SetUserActive(_ context.Context, userID string, active bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.RegistrationStatus != workflow.RegistrationApproved {
		return false, nil
	}
	user.IsActive = active
	user.UpdatedAt = at
	m.users[userID] = user
	return true, nil
}

func (m *memStore) withOwner(q store.Question) store.Question {
	q.OwnerName = m.users[q.OwnerID].DisplayName
	q.Tags = slices.Clone(q.Tags)
	return q
}

func (m *memStore) InsertQuestion(_ context.Context, item store.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.questions[item.ID]; exists {
		return store.ErrDuplicate
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	m.questions[item.ID] = item
	m.stamp(item.ID)
	return nil
}

func (m *memStore) GetQuestion(_ context.Context, questionID string) (store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok {
		return store.Question{}, store.ErrNotFound
	}
	return m.withOwner(q), nil
}

func (m *memStore) ListQuestions(_ context.Context, filter store.QuestionFilter) ([]store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Question, 0)
	for _, q := range m.questions {
		if filter.OwnerID != "" && q.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, q.Status) {
			continue
		}
		if filter.Group != "" && q.TargetGroup != "" && q.TargetGroup != filter.Group {
			continue
		}
		if filter.AnsweredBy != "" && !m.hasAnswer(q.ID, filter.AnsweredBy) {
			continue
		}
		if filter.DeadlineAfter != nil && !q.Deadline.After(*filter.DeadlineAfter) {
			continue
		}
		items = append(items, m.withOwner(q))
	}
	// Newest first, like the SQL ordering.
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] > m.order[items[j].ID] })
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (m *memStore) hasAnswer(questionID, submitterID string) bool {
	for _, a := range m.answers {
		if a.QuestionID == questionID && a.SubmitterID == submitterID {
			return true
		}
	}
	return false
}

func (m *memStore) UpdateDraftQuestion(_ context.Context, item store.Question) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[item.ID]
	if !ok || q.Status != workflow.QuestionDraft {
		return false, nil
	}
	q.Title = item.Title
	q.Description = item.Description
	q.Tags = slices.Clone(item.Tags)
	q.Difficulty = item.Difficulty
	q.TargetGroup = item.TargetGroup
	q.Deadline = item.Deadline
	q.Anonymous = item.Anonymous
	q.UpdatedAt = item.UpdatedAt
	m.questions[item.ID] = q
	return true, nil
}

func (m *memStore) TransitionQuestion(_ context.Context, questionID string, from, to workflow.QuestionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok || q.Status != from {
		return false, nil
	}
	q.Status = to
	switch to {
	case workflow.QuestionOpen:
		q.PublishedAt = &at
	case workflow.QuestionClosed:
		q.ClosedAt = &at
	}
	q.UpdatedAt = at
	m.questions[questionID] = q
	return true, nil
}

func (m *memStore) DeleteQuestion(_ context.Context, questionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok {
		return false, nil
	}
	if q.Status != workflow.QuestionDraft && q.Status != workflow.QuestionClosed {
		return false, nil
	}
	for _, a := range m.answers {
		if a.QuestionID == questionID {
			return false, nil
		}
	}
	delete(m.questions, questionID)
	return true, nil
}

func (m *memStore) CountAnswers(_ context.Context, questionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.answers {
		if a.QuestionID == questionID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) SaveCompilation(_ context.Context, questionID, content string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok || (q.Status != workflow.QuestionOpen && q.Status != workflow.QuestionClosed) {
		return false, nil
	}
	q.CompiledContent = content
	q.CompiledAt = &at
	q.UpdatedAt = at
	m.questions[questionID] = q
	return true, nil
}

func (m *memStore) ApproveCompilation(_ context.Context, questionID string, at time.Time) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok || (q.Status != workflow.QuestionOpen && q.Status != workflow.QuestionClosed) || q.CompiledContent == "" {
		return 0, false, nil
	}
	q.Status = workflow.QuestionCompleted
	q.ApprovedAt = &at
	if q.ClosedAt == nil {
		q.ClosedAt = &at
	}
	q.UpdatedAt = at
	m.questions[questionID] = q

	locked := 0
	for id, a := range m.answers {
		if a.QuestionID == questionID && a.Status == workflow.AnswerApproved && !a.IsLocked {
			a.IsLocked = true
			a.UpdatedAt = at
			m.answers[id] = a
			locked++
		}
	}
	return locked, true, nil
}

func (m *memStore) CloseExpiredQuestions(_ context.Context, now time.Time) ([]store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := make([]store.Question, 0)
	for id, q := range m.questions {
		if q.Status == workflow.QuestionOpen && !q.Deadline.After(now) {
			q.Status = workflow.QuestionClosed
			q.ClosedAt = &now
			q.UpdatedAt = now
			m.questions[id] = q
			closed = append(closed, m.withOwner(q))
		}
	}
	return closed, nil
}

func (m *memStore) withSubmitter(a store.Answer) store.Answer {
	a.SubmitterName = m.users[a.SubmitterID].DisplayName
	return a
}

func (m *memStore) GetAnswer(_ context.Context, answerID string) (store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok {
		return store.Answer{}, store.ErrNotFound
	}
	return m.withSubmitter(a), nil
}

func (m *memStore) FindAnswer(_ context.Context, questionID, submitterID string) (store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.QuestionID == questionID && a.SubmitterID == submitterID {
			return m.withSubmitter(a), nil
		}
	}
	return store.Answer{}, store.ErrNotFound
}

func (m *memStore) ListAnswers(_ context.Context, questionID, submitterID string) ([]store.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Answer, 0)
	for _, a := range m.answers {
		if a.QuestionID != questionID || (submitterID != "" && a.SubmitterID != submitterID) {
			continue
		}
		items = append(items, m.withSubmitter(a))
	}
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] < m.order[items[j].ID] })
	return items, nil
}

func (m *memStore) acceptsAnswers(questionID string, at time.Time) error {
	q, ok := m.questions[questionID]
	if !ok {
		return store.ErrNotFound
	}
	if q.Status != workflow.QuestionOpen || !q.Deadline.After(at) {
		return store.ErrSubmissionClosed
	}
	return nil
}

func (m *memStore) CreateAnswer(_ context.Context, answer store.Answer, version store.AnswerVersion) (store.Answer, store.AnswerVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.acceptsAnswers(answer.QuestionID, answer.CreatedAt); err != nil {
		return store.Answer{}, store.AnswerVersion{}, err
	}
	if m.hasAnswer(answer.QuestionID, answer.SubmitterID) {
		return store.Answer{}, store.AnswerVersion{}, store.ErrDuplicate
	}
	answer.Status = workflow.AnswerSubmitted
	answer.VersionCount = 1
	answer.UpdatedAt = answer.CreatedAt
	version.AnswerID = answer.ID
	version.VersionNumber = 1

	m.answers[answer.ID] = answer
	m.stamp(answer.ID)
	m.versions[version.ID] = version
	m.stamp(version.ID)
	return m.withSubmitter(answer), version, nil
}

func (m *memStore) ReviseAnswer(_ context.Context, rev store.Revision) (store.Answer, store.AnswerVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.acceptsAnswers(rev.QuestionID, rev.At); err != nil {
		return store.Answer{}, store.AnswerVersion{}, err
	}
	a, ok := m.answers[rev.AnswerID]
	if !ok || a.VersionCount != rev.ExpectedVersionCount || a.IsLocked ||
		(a.Status != workflow.AnswerDraft && a.Status != workflow.AnswerRevisionRequested) {
		return store.Answer{}, store.AnswerVersion{}, store.ErrStale
	}
	a.Content = rev.Content
	a.Status = workflow.AnswerSubmitted
	a.StatusReason = ""
	a.VersionCount++
	a.UpdatedAt = rev.At
	m.answers[a.ID] = a

	version := store.AnswerVersion{
		ID:            rev.VersionID,
		AnswerID:      a.ID,
		VersionNumber: a.VersionCount,
		Content:       rev.Content,
		Note:          rev.Note,
		SubmittedAt:   rev.At,
	}
	m.versions[version.ID] = version
	m.stamp(version.ID)
	return m.withSubmitter(a), version, nil
}

func (m *memStore) DispositionAnswer(_ context.Context, answerID string, status workflow.AnswerStatus, reason string, lock bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok || a.IsLocked {
		return false, nil
	}
	a.Status = status
	a.StatusReason = reason
	a.IsLocked = a.IsLocked || lock
	a.UpdatedAt = at
	m.answers[answerID] = a
	return true, nil
}

func (m *memStore) DeleteAnswer(_ context.Context, answerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok || a.IsLocked || a.Status == workflow.AnswerApproved {
		return false, nil
	}
	delete(m.answers, answerID)
	for id, v := range m.versions {
		if v.AnswerID == answerID {
			delete(m.versions, id)
		}
	}
	for id, c := range m.comments {
		if c.AnswerID == answerID {
			delete(m.comments, id)
		}
	}
	for id, att := range m.attachments {
		if att.AnswerID == answerID {
			delete(m.attachments, id)
		}
	}
	return true, nil
}

func (m *memStore) ListVersions(_ context.Context, answerID string) ([]store.AnswerVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.AnswerVersion, 0)
	for _, v := range m.versions {
		if v.AnswerID == answerID {
			items = append(items, v)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].VersionNumber > items[j].VersionNumber })
	return items, nil
}

func (m *memStore) GetVersion(_ context.Context, versionID string) (store.AnswerVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return store.AnswerVersion{}, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) LatestVersion(ctx context.Context, answerID string) (store.AnswerVersion, error) {
	items, _ := m.ListVersions(ctx, answerID)
	if len(items) == 0 {
		return store.AnswerVersion{}, store.ErrNotFound
	}
	return items[0], nil
}

func (m *memStore) InsertComment(_ context.Context, item store.InlineComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[item.ID] = item
	m.stamp(item.ID)
	return nil
}

func (m *memStore) GetComment(_ context.Context, commentID string) (store.InlineComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return store.InlineComment{}, store.ErrNotFound
	}
	c.AuthorName = m.users[c.AuthorID].DisplayName
	return c, nil
}

func (m *memStore) ListComments(_ context.Context, answerID, versionID string) ([]store.InlineComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.InlineComment, 0)
	for _, c := range m.comments {
		if c.AnswerID != answerID || (versionID != "" && c.VersionID != versionID) {
			continue
		}
		c.AuthorName = m.users[c.AuthorID].DisplayName
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] < m.order[items[j].ID] })
	return items, nil
}

func (m *memStore) ResolveComment(_ context.Context, commentID, resolverID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok || c.Resolved {
		return false, nil
	}
	c.Resolved = true
	c.ResolvedAt = &at
	c.ResolvedBy = resolverID
	m.comments[commentID] = c
	return true, nil
}

func (m *memStore) InsertNotification(_ context.Context, item store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[item.ID] = item
	m.stamp(item.ID)
	return nil
}

func (m *memStore) GetNotification(_ context.Context, notificationID string) (store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok {
		return store.Notification{}, store.ErrNotFound
	}
	return n, nil
}

func (m *memStore) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Notification, 0)
	for _, n := range m.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		items = append(items, n)
	}
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] > m.order[items[j].ID] })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memStore) CountUnreadNotifications(_ context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, recipientID, notificationID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationID]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	n.IsRead = true
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	m.notifications[notificationID] = n
	return true, nil
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, recipientID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := 0
	for id, n := range m.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			m.notifications[id] = n
			updated++
		}
	}
	return updated, nil
}

func (m *memStore) notificationsFor(recipientID string) []store.Notification {
	items, _ := m.ListNotifications(context.Background(), recipientID, false, 0)
	return items
}

func (m *memStore) InsertAuditEntry(_ context.Context, entry store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.audit))
	for _, entry := range m.audit {
		actions = append(actions, entry.Action)
	}
	return actions
}

func (m *memStore) InsertAttachment(_ context.Context, item store.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[item.ID] = item
	m.stamp(item.ID)
	return nil
}

func (m *memStore) GetAttachment(_ context.Context, attachmentID string) (store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attachments[attachmentID]
	if !ok {
		return store.Attachment{}, store.ErrNotFound
	}
	return att, nil
}

func (m *memStore) ListAttachments(_ context.Context, answerID string) ([]store.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Attachment, 0)
	for _, att := range m.attachments {
		if att.AnswerID == answerID {
			items = append(items, att)
		}
	}
	sort.Slice(items, func(i, j int) bool { return m.order[items[i].ID] < m.order[items[j].ID] })
	return items, nil
}

func (m *memStore) CountAttachments(ctx context.Context, answerID string) (int, error) {
	items, err := m.ListAttachments(ctx, answerID)
	return len(items), err
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = memRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.refresh[tokenHash]
	if !ok {
		return "", store.ErrNotFound
	}
	return session.userID, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeUserSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.refresh {
		if session.userID == userID {
			delete(m.refresh, hash)
		}
	}
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = exp
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

var errStoreDown = errors.New("store unavailable")
