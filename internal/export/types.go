// Package export renders an approved compilation to PDF.
package export

import (
	"errors"
	"time"
)

// Compilation is the approved record handed to the renderer.
type Compilation struct {
	QuestionID   string
	Title        string
	Description  string
	Tags         []string
	OwnerName    string // empty for anonymous questions
	Content      string
	CompletedAt  time.Time
	Contributors int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrNothingToExport indicates the compilation has no content.
	ErrNothingToExport = errors.New("export compilation empty")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
