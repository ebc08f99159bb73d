// Package attachment stores answer attachment blobs. The workflow treats
// the returned file reference as opaque.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"
)

const (
	MaxFilesPerAnswer = 5
	MaxFileSize       = 10 << 20
)

var (
	ErrNotFound    = errors.New("attachment not found")
	ErrTooLarge    = fmt.Errorf("attachment exceeds %d bytes", MaxFileSize)
	ErrTooMany     = fmt.Errorf("an answer holds at most %d attachments", MaxFilesPerAnswer)
	ErrUnavailable = errors.New("attachment storage is not configured")
)

// Blob is an uploaded file on its way in or out of storage.
type Blob struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Object is a retrieved blob. The caller closes Body.
type Object struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Store is the attachment collaborator.
type Store interface {
	Store(ctx context.Context, key string, blob Blob) (string, error)
	Retrieve(ctx context.Context, fileRef string) (Object, error)
}

// CheckUpload enforces the per-answer attachment limits.
func CheckUpload(existing int, size int64) error {
	if existing >= MaxFilesPerAnswer {
		return ErrTooMany
	}
	if size > MaxFileSize {
		return ErrTooLarge
	}
	if size < 0 {
		return errors.New("attachment size is unknown")
	}
	return nil
}

// ObjectKey builds the storage key for an answer's attachment.
func ObjectKey(answerID, attachmentID, filename string) string {
	return path.Join("answers", answerID, attachmentID+"-"+SanitizeFilename(filename))
}

// SanitizeFilename keeps the base name and replaces anything outside a
// conservative character set.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return "file"
	}
	return clean
}
