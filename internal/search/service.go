package search

import (
	"context"
	"fmt"
	"log/slog"
)

// index is the write side of Meili, split out so tests can observe it.
type index interface {
	Searcher
	IndexQuestion(rec QuestionRecord) error
	DeleteQuestion(id string) error
	IndexQuestions(records []QuestionRecord) error
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  index
	pgfts  Searcher
	loader func(context.Context) ([]QuestionRecord, error)
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(m *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}
	if m != nil {
		s.meili = m
	}
	if pgfts != nil {
		s.pgfts = pgfts
		s.loader = pgfts.LoadQuestionRecords
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexQuestion indexes a question (fire-and-forget to Meilisearch).
func (s *Service) IndexQuestion(rec QuestionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexQuestion(rec); err != nil {
			s.logger.Warn("index question", "question_id", rec.ID, "error", err)
		}
	}()
}

// DeleteQuestion removes a question from the search index (fire-and-forget).
func (s *Service) DeleteQuestion(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteQuestion(id); err != nil {
			s.logger.Warn("delete question from index", "question_id", id, "error", err)
		}
	}()
}

// ReindexAllFromPG pushes every question from PostgreSQL into Meilisearch
// and returns how many were sent.
func (s *Service) ReindexAllFromPG(ctx context.Context) (int, error) {
	if s.meili == nil || !s.meili.Healthy() {
		return 0, fmt.Errorf("meilisearch is not available")
	}
	if s.loader == nil {
		return 0, fmt.Errorf("no question source configured")
	}
	records, err := s.loader(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.meili.IndexQuestions(records); err != nil {
		return 0, fmt.Errorf("reindex questions: %w", err)
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
