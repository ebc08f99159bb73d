// Package audit records who did what to which resource. Recording is
// fire-and-forget: failures are logged and never reach the caller.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
)

const writeTimeout = 5 * time.Second

// Writer appends one entry to the audit log.
type Writer interface {
	InsertAuditEntry(context.Context, store.AuditEntry) error
}

type Entry struct {
	ActorID      string
	Action       workflow.AuditAction
	ResourceType workflow.ResourceType
	ResourceID   string
	Metadata     map[string]any
}

type clientKey struct{}

type client struct {
	ip        string
	userAgent string
}

// WithClient attaches the caller's network identity so entries recorded
// under ctx carry it.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, client{ip: ip, userAgent: userAgent})
}

type Recorder struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewRecorder(writer Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{writer: writer, logger: logger, now: time.Now}
}

// Record writes entry in the background. The write outlives ctx's
// cancellation but not writeTimeout.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	c, _ := ctx.Value(clientKey{}).(client)
	row := store.AuditEntry{
		ActorID:      entry.ActorID,
		Action:       string(entry.Action),
		ResourceType: string(entry.ResourceType),
		ResourceID:   entry.ResourceID,
		Metadata:     entry.Metadata,
		IP:           c.ip,
		UserAgent:    c.userAgent,
		CreatedAt:    r.now().UTC(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := r.writer.InsertAuditEntry(writeCtx, row); err != nil {
			r.logger.Warn("audit write failed",
				"action", row.Action,
				"actor_id", row.ActorID,
				"resource_type", row.ResourceType,
				"resource_id", row.ResourceID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every pending write has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
