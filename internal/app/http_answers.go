package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"answerdesk/api/internal/attachment"
	"answerdesk/api/internal/workflow"
)

// routeAnswers serves /api/answers/{id}/... parts excludes the
// "api/answers" prefix.
func (s *HTTPServer) routeAnswers(w http.ResponseWriter, r *http.Request, caller workflow.Caller, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	ctx := r.Context()
	answerID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			answer, err := s.service.GetAnswer(ctx, caller, answerID)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, answer)
			return
		case http.MethodDelete:
			if err := s.service.DeleteAnswer(ctx, caller, answerID); err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	action := parts[1]

	if len(parts) == 2 && action == "versions" && r.Method == http.MethodGet {
		items, err := s.service.ListVersions(ctx, caller, answerID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost && (action == "request-revision" || action == "approve" || action == "reject") {
		var body DispositionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var (
			answer AnswerView
			err    error
		)
		switch action {
		case "request-revision":
			answer, err = s.service.RequestRevision(ctx, caller, answerID, body)
		case "approve":
			answer, err = s.service.ApproveAnswer(ctx, caller, answerID)
		default:
			answer, err = s.service.RejectAnswer(ctx, caller, answerID, body)
		}
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, answer)
		return
	}

	if len(parts) == 2 && action == "comments" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListComments(ctx, caller, answerID, r.URL.Query().Get("versionId"))
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case http.MethodPost:
			var body CommentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			comment, err := s.service.AddComment(ctx, caller, answerID, body)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, comment)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && action == "attachments" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListAttachments(ctx, caller, answerID)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case http.MethodPost:
			s.handleAttachmentUpload(w, r, caller, answerID)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 3 && action == "attachments" && r.Method == http.MethodGet {
		download, err := s.service.DownloadAttachment(ctx, caller, answerID, parts[2])
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		defer download.Body.Close()
		w.Header().Set("Content-Type", download.Attachment.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Attachment.Filename))
		if download.Attachment.SizeBytes > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(download.Attachment.SizeBytes, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, download.Body); err != nil {
			s.logger.Warn("stream attachment", "request_id", requestIDFrom(ctx), "attachment_id", parts[2], "error", err)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleAttachmentUpload accepts one multipart file in the "file" field.
func (s *HTTPServer) handleAttachmentUpload(w http.ResponseWriter, r *http.Request, caller workflow.Caller, answerID string) {
	r.Body = http.MaxBytesReader(w, r.Body, attachment.MaxFileSize+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", attachment.ErrTooLarge.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	view, err := s.service.UploadAttachment(r.Context(), caller, answerID, Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}
