// Package notify fans workflow events out to their audience: a durable
// notification row first, then a best-effort live event.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"answerdesk/api/internal/util"
)

// ErrNoSubscribers reports that a live event reached nobody. Callers treat
// it as a normal outcome.
var ErrNoSubscribers = errors.New("no subscribers")

// Scope names a subscriber group: one recipient or one question.
type Scope string

func UserScope(userID string) Scope {
	return Scope("user:" + userID)
}

func QuestionScope(questionID string) Scope {
	return Scope("question:" + questionID)
}

// QuestionID returns the question id of a question scope.
func (s Scope) QuestionID() (string, bool) {
	return strings.CutPrefix(string(s), "question:")
}

// Publisher delivers one live event to a scope.
type Publisher interface {
	Publish(ctx context.Context, scope Scope, event string, payload any) error
}

// Event is the wire form of a live event.
type Event struct {
	ID      string          `json:"id"`
	Scope   Scope           `json:"scope"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

func newEvent(scope Scope, name string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:      util.NewID("evt"),
		Scope:   scope,
		Name:    name,
		Payload: raw,
		At:      time.Now().UTC(),
	}, nil
}
