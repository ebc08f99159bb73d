package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxQuestions = "answerdesk_questions"

// Meili implements Searcher over a Meilisearch question index.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewMeili creates a Meilisearch client and configures the index. An
// unreachable server is tolerated; a background loop keeps probing.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxQuestions,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create search index (may already exist)", "index", idxQuestions, "error", err)
	}

	index := m.client.Index(idxQuestions)
	filterable := []interface{}{"status", "ownerId", "targetGroup"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxQuestions, "error", err)
	}
	searchable := []string{"title", "description", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxQuestions, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		IndexUID:              idxQuestions,
		Query:                 q.Text,
		Limit:                 int64(q.limit()),
		Offset:                int64(q.offset()),
		AttributesToHighlight: []string{"title", "description"},
		AttributesToCrop:      []string{"description"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := meiliFilters(q); len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0)
	total := 0
	for _, part := range resp.Results {
		total += int(part.EstimatedTotalHits)
		for _, hit := range part.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

// meiliFilters translates the visibility constraints into filter
// expressions, ANDed together.
func meiliFilters(q Query) []string {
	var filters []string
	if q.OwnerID != "" {
		filters = append(filters, fmt.Sprintf("ownerId = %q", q.OwnerID))
	}
	if len(q.Statuses) > 0 {
		quoted := make([]string, 0, len(q.Statuses))
		for _, status := range q.Statuses {
			quoted = append(quoted, fmt.Sprintf("%q", status))
		}
		filters = append(filters, "status IN ["+strings.Join(quoted, ", ")+"]")
	}
	if q.GroupFilter {
		if q.Group == "" {
			filters = append(filters, "targetGroup IS EMPTY")
		} else {
			filters = append(filters, fmt.Sprintf("(targetGroup IS EMPTY OR targetGroup = %q)", q.Group))
		}
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Title:       firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description")),
		Status:      decodeString(hit, "status"),
		TargetGroup: decodeString(hit, "targetGroup"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(formatted[key], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexQuestion adds or updates a question in the search index.
func (m *Meili) IndexQuestion(rec QuestionRecord) error {
	_, err := m.client.Index(idxQuestions).AddDocuments([]QuestionRecord{rec}, nil)
	return err
}

// DeleteQuestion removes a question from the search index.
func (m *Meili) DeleteQuestion(id string) error {
	_, err := m.client.Index(idxQuestions).DeleteDocument(id, nil)
	return err
}

// IndexQuestions bulk-indexes questions.
func (m *Meili) IndexQuestions(records []QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxQuestions).AddDocuments(records, nil)
	return err
}
