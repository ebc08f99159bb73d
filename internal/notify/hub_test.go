package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events:
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubDeliversByScope(t *testing.T) {
	hub := NewHub()
	alice := hub.Subscribe(UserScope("usr_alice"), QuestionScope("qst_1"))
	defer alice.Close()
	bob := hub.Subscribe(UserScope("usr_bob"))
	defer bob.Close()

	require.NoError(t, hub.Publish(context.Background(), QuestionScope("qst_1"), "new_answer", map[string]any{"answerId": "ans_1"}))

	evt := receive(t, alice)
	assert.Equal(t, "new_answer", evt.Name)
	assert.Equal(t, QuestionScope("qst_1"), evt.Scope)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "ans_1", payload["answerId"])

	select {
	case evt := <-bob.Events:
		t.Fatalf("bob should not receive question events, got %+v", evt)
	default:
	}
}

func TestHubReportsNoSubscribers(t *testing.T) {
	hub := NewHub()
	err := hub.Publish(context.Background(), UserScope("usr_nobody"), "answer_approved", nil)
	assert.ErrorIs(t, err, ErrNoSubscribers)
}

func TestHubCloseUnregisters(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(UserScope("usr_1"), QuestionScope("qst_1"))
	assert.Equal(t, 1, hub.SubscriberCount(UserScope("usr_1")))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount(UserScope("usr_1")))
	assert.Equal(t, 0, hub.SubscriberCount(QuestionScope("qst_1")))

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed")
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(WithSubscriberCapacity(1))
	sub := hub.Subscribe(UserScope("usr_1"))
	defer sub.Close()

	require.NoError(t, hub.Publish(context.Background(), UserScope("usr_1"), "first", nil))
	require.NoError(t, hub.Publish(context.Background(), UserScope("usr_1"), "second", nil))

	assert.Equal(t, "first", receive(t, sub).Name)
	select {
	case evt := <-sub.Events:
		t.Fatalf("expected overflow event to be dropped, got %+v", evt)
	default:
	}
}

func TestScopeQuestionID(t *testing.T) {
	id, ok := QuestionScope("qst_9").QuestionID()
	assert.True(t, ok)
	assert.Equal(t, "qst_9", id)

	_, ok = UserScope("usr_1").QuestionID()
	assert.False(t, ok)
}
