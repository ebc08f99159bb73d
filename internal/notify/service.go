package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

// Store persists notification rows.
type Store interface {
	InsertNotification(context.Context, store.Notification) error
}

// Message describes one notification to one recipient. The live event is
// named after Type and also goes to every scope in Also.
type Message struct {
	RecipientID  string
	Type         workflow.NotificationType
	Title        string
	Body         string
	Link         string
	ResourceType workflow.ResourceType
	ResourceID   string
	Payload      map[string]any
	Also         []Scope
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the durable store and live publisher. A nil publisher
// disables live events.
func NewService(notifications Store, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: notifications, publisher: publisher, logger: logger, now: time.Now}
}

// Notify writes the notification row and then attempts the live event.
// Neither failure is returned; both are logged.
func (s *Service) Notify(ctx context.Context, msg Message) {
	if msg.RecipientID == "" || !msg.Type.Valid() {
		s.logger.Warn("skipping malformed notification", "recipient", msg.RecipientID, "type", msg.Type)
		return
	}

	record := store.Notification{
		ID:           util.NewID("ntf"),
		RecipientID:  msg.RecipientID,
		Type:         msg.Type,
		Title:        msg.Title,
		Body:         msg.Body,
		Link:         msg.Link,
		ResourceType: string(msg.ResourceType),
		ResourceID:   msg.ResourceID,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, record); err != nil {
		s.logger.Warn("persist notification", "recipient", msg.RecipientID, "type", msg.Type, "resource_id", msg.ResourceID, "error", err)
	}

	payload := map[string]any{
		"notificationId": record.ID,
		"title":          msg.Title,
		"body":           msg.Body,
		"link":           msg.Link,
		"resourceType":   string(msg.ResourceType),
		"resourceId":     msg.ResourceID,
	}
	for key, value := range msg.Payload {
		payload[key] = value
	}

	s.publish(ctx, UserScope(msg.RecipientID), string(msg.Type), payload)
	for _, scope := range msg.Also {
		s.publish(ctx, scope, string(msg.Type), msg.Payload)
	}
}

// Broadcast sends a live event with no durable record.
func (s *Service) Broadcast(ctx context.Context, scope Scope, event string, payload map[string]any) {
	s.publish(ctx, scope, event, payload)
}

func (s *Service) publish(ctx context.Context, scope Scope, event string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, scope, event, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSubscribers):
		s.logger.Debug("live event had no subscribers", "scope", scope, "event", event)
	default:
		s.logger.Warn("publish live event", "scope", scope, "event", event, "error", err)
	}
}
