package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"answerdesk/api/internal/store"
	"answerdesk/api/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	mu      sync.Mutex
	entries []store.AuditEntry
	err     error
}

func (m *memoryWriter) InsertAuditEntry(ctx context.Context, entry store.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestRecordCarriesClientAndSurvivesCancel(t *testing.T) {
	writer := &memoryWriter{}
	recorder := NewRecorder(writer, nil)

	ctx, cancel := context.WithCancel(WithClient(context.Background(), "203.0.113.9", "curl/8"))
	recorder.Record(ctx, Entry{
		ActorID:      "usr_1",
		Action:       workflow.AuditAnswerSubmit,
		ResourceType: workflow.ResourceAnswer,
		ResourceID:   "ans_1",
		Metadata:     map[string]any{"version": 1},
	})
	cancel()
	recorder.Wait()

	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, "answer_submit", entry.Action)
	assert.Equal(t, "Answer", entry.ResourceType)
	assert.Equal(t, "203.0.113.9", entry.IP)
	assert.Equal(t, "curl/8", entry.UserAgent)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecordLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	recorder := NewRecorder(&memoryWriter{err: errors.New("table locked")}, logger)

	recorder.Record(context.Background(), Entry{ActorID: "usr_1", Action: workflow.AuditQuestionPublish, ResourceID: "qst_1"})
	recorder.Wait()

	assert.Contains(t, buf.String(), "audit write failed")
	assert.Contains(t, buf.String(), "qst_1")
}
