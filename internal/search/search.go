package search

import (
	"context"

	"answerdesk/api/internal/store"
)

// Result is a single question hit returned to the caller. It never carries
// owner identity, so anonymous questions need no redaction here.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Status      string `json:"status"`
	TargetGroup string `json:"targetGroup,omitempty"`
}

// Query describes a search request. The visibility fields are filled in by
// the caller from the requesting identity.
type Query struct {
	Text string
	// OwnerID restricts hits to one owner's questions.
	OwnerID string
	// Statuses restricts hits to these question statuses.
	Statuses []string
	// When GroupFilter is set, hits must target Group or no group at all.
	Group       string
	GroupFilter bool
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// QuestionRecord is the data we index for a question.
type QuestionRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`
	OwnerID     string   `json:"ownerId"`
	TargetGroup string   `json:"targetGroup"`
	Deadline    int64    `json:"deadline"`
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// RecordFor builds the index document for a stored question.
func RecordFor(q store.Question) QuestionRecord {
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	return QuestionRecord{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Tags:        tags,
		Status:      string(q.Status),
		OwnerID:     q.OwnerID,
		TargetGroup: q.TargetGroup,
		Deadline:    q.Deadline.Unix(),
	}
}
