package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"answerdesk/api/internal/attachment"
	"answerdesk/api/internal/store"
	"answerdesk/api/internal/util"
	"answerdesk/api/internal/workflow"
)

// Upload is one incoming attachment. Size must be known up front.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Download is a retrieved attachment. The caller closes Body.
type Download struct {
	Attachment AttachmentView
	Body       io.ReadCloser
}

var errAttachmentsUnavailable = domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured", nil)

// UploadAttachment stores a file on the caller's own unlocked answer.
func (s *Service) UploadAttachment(ctx context.Context, caller workflow.Caller, answerID string, upload Upload) (AttachmentView, error) {
	if s.attachments == nil {
		return AttachmentView{}, errAttachmentsUnavailable
	}
	_, answer, access, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return AttachmentView{}, err
	}
	if !access.IsAuthor {
		return AttachmentView{}, workflow.Forbidden("only the answer's submitter may attach files")
	}
	if answer.IsLocked {
		return AttachmentView{}, workflow.InvalidTransition("answer is locked")
	}
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		return AttachmentView{}, workflow.Validation("file name is required")
	}

	existing, err := s.store.CountAttachments(ctx, answer.ID)
	if err != nil {
		return AttachmentView{}, err
	}
	switch err := attachment.CheckUpload(existing, upload.Size); {
	case errors.Is(err, attachment.ErrTooMany):
		return AttachmentView{}, workflow.Conflict(err.Error())
	case errors.Is(err, attachment.ErrTooLarge):
		return AttachmentView{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)
	case err != nil:
		return AttachmentView{}, workflow.Validation(err.Error())
	}

	id := util.NewID("att")
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileRef, err := s.attachments.Store(ctx, attachment.ObjectKey(answer.ID, id, filename), attachment.Blob{
		Filename:    filename,
		ContentType: contentType,
		Size:        upload.Size,
		Body:        upload.Body,
	})
	if err != nil {
		return AttachmentView{}, err
	}

	row := store.Attachment{
		ID:          id,
		AnswerID:    answer.ID,
		FileRef:     fileRef,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   upload.Size,
		UploadedBy:  caller.ID,
		CreatedAt:   s.clock(),
	}
	if err := s.store.InsertAttachment(ctx, row); err != nil {
		return AttachmentView{}, err
	}
	s.record(ctx, caller, workflow.AuditAttachmentUpload, workflow.ResourceAttachment, id, map[string]any{
		"answerId": answer.ID,
		"filename": filename,
		"size":     upload.Size,
	})
	return attachmentView(row), nil
}

func (s *Service) ListAttachments(ctx context.Context, caller workflow.Caller, answerID string) ([]AttachmentView, error) {
	_, answer, _, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListAttachments(ctx, answer.ID)
	if err != nil {
		return nil, err
	}
	views := make([]AttachmentView, 0, len(items))
	for _, item := range items {
		views = append(views, attachmentView(item))
	}
	return views, nil
}

func (s *Service) DownloadAttachment(ctx context.Context, caller workflow.Caller, answerID, attachmentID string) (Download, error) {
	if s.attachments == nil {
		return Download{}, errAttachmentsUnavailable
	}
	_, answer, _, err := s.accessibleAnswer(ctx, caller, answerID)
	if err != nil {
		return Download{}, err
	}
	row, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return Download{}, notFound(err, "attachment not found")
	}
	if row.AnswerID != answer.ID {
		return Download{}, workflow.NotFound("attachment not found")
	}

	obj, err := s.attachments.Retrieve(ctx, row.FileRef)
	if errors.Is(err, attachment.ErrNotFound) {
		return Download{}, workflow.NotFound("attachment content not found")
	}
	if err != nil {
		return Download{}, err
	}
	view := attachmentView(row)
	if obj.ContentType != "" {
		view.ContentType = obj.ContentType
	}
	return Download{Attachment: view, Body: obj.Body}, nil
}
