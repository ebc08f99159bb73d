package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu    sync.Mutex
	items []store.Notification
	err   error
}

func (r *recordingStore) InsertNotification(_ context.Context, item store.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, item)
	return nil
}

type publishCall struct {
	scope Scope
	event string
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	// persisted is checked at publish time to prove ordering.
	persisted func() int
	seen      []int
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, scope Scope, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{scope: scope, event: event})
	if p.persisted != nil {
		p.seen = append(p.seen, p.persisted())
	}
	return p.err
}

func TestNotifyPersistsBeforePublishing(t *testing.T) {
	rows := &recordingStore{}
	pub := &recordingPublisher{}
	pub.persisted = func() int {
		rows.mu.Lock()
		defer rows.mu.Unlock()
		return len(rows.items)
	}
	svc := NewService(rows, pub, nil)

	svc.Notify(context.Background(), Message{
		RecipientID:  "usr_owner",
		Type:         workflow.NotifyNewAnswer,
		Title:        "New answer",
		ResourceType: workflow.ResourceAnswer,
		ResourceID:   "ans_1",
		Also:         []Scope{QuestionScope("qst_1")},
	})

	require.Len(t, rows.items, 1)
	assert.Equal(t, workflow.NotifyNewAnswer, rows.items[0].Type)
	assert.Equal(t, "Answer", rows.items[0].ResourceType)
	require.Len(t, pub.calls, 2)
	assert.Equal(t, publishCall{scope: UserScope("usr_owner"), event: "new_answer"}, pub.calls[0])
	assert.Equal(t, publishCall{scope: QuestionScope("qst_1"), event: "new_answer"}, pub.calls[1])
	assert.Equal(t, []int{1, 1}, pub.seen)
}

func TestNotifySwallowsFailures(t *testing.T) {
	rows := &recordingStore{err: errors.New("db down")}
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewService(rows, pub, nil)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), Message{RecipientID: "usr_1", Type: workflow.NotifyAnswerApproved, Title: "Answer approved"})
	})
	assert.Len(t, pub.calls, 1, "live event is still attempted when persistence fails")
}

func TestNotifySkipsUnknownType(t *testing.T) {
	rows := &recordingStore{}
	svc := NewService(rows, nil, nil)
	svc.Notify(context.Background(), Message{RecipientID: "usr_1", Type: "confetti"})
	assert.Empty(t, rows.items)
}

func TestNotifyWithHubOnly(t *testing.T) {
	rows := &recordingStore{}
	hub := NewHub()
	svc := NewService(rows, hub, nil)

	svc.Notify(context.Background(), Message{RecipientID: "usr_1", Type: workflow.NotifyInlineComment, Title: "New feedback"})
	require.Len(t, rows.items, 1)

	sub := hub.Subscribe(UserScope("usr_1"))
	defer sub.Close()
	svc.Broadcast(context.Background(), UserScope("usr_1"), "answer_updated", map[string]any{"answerId": "ans_1"})
	assert.Equal(t, "answer_updated", receive(t, sub).Name)
}
