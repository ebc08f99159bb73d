package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type renderFunc func(ctx context.Context, html string) ([]byte, error)

// Service turns approved compilations into PDF documents.
type Service struct {
	render  renderFunc
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates an export service backed by headless Chrome.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{render: chromePDF, timeout: 30 * time.Second, logger: logger}
}

// CompilationPDF renders c to PDF.
func (s *Service) CompilationPDF(ctx context.Context, c Compilation) (*Result, error) {
	if strings.TrimSpace(c.Content) == "" {
		return nil, ErrNothingToExport
	}

	html, err := RenderCompilationHTML(TemplateData{
		Title:        c.Title,
		Description:  paragraphs(c.Description),
		Tags:         c.Tags,
		Owner:        c.OwnerName,
		CompletedAt:  c.CompletedAt,
		Contributors: c.Contributors,
		Paragraphs:   paragraphs(c.Content),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	data, err := s.render(ctx, html)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("compilation exported", "question_id", c.QuestionID, "bytes", len(data), "duration_ms", time.Since(started).Milliseconds())

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(c.Title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}
