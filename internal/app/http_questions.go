package app

import (
	"fmt"
	"net/http"
	"strconv"

	"answerdesk/api/internal/workflow"
)

// routeQuestions serves /api/questions and everything below it. parts
// excludes the "api/questions" prefix.
func (s *HTTPServer) routeQuestions(w http.ResponseWriter, r *http.Request, caller workflow.Caller, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListQuestions(ctx, caller, r.URL.Query().Get("status"))
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case http.MethodPost:
			var body QuestionInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			question, err := s.service.CreateQuestion(ctx, caller, body)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, question)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 1 && r.Method == http.MethodGet {
		switch parts[0] {
		case "open":
			items, err := s.service.ListOpenQuestions(ctx, caller)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case "answered":
			items, err := s.service.ListAnsweredQuestions(ctx, caller)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case "search":
			query := r.URL.Query()
			limit, _ := strconv.Atoi(query.Get("limit"))
			offset, _ := strconv.Atoi(query.Get("offset"))
			result, err := s.service.SearchQuestions(ctx, caller, query.Get("q"), limit, offset)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	questionID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			question, err := s.service.GetQuestion(ctx, caller, questionID)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, question)
			return
		case http.MethodPut:
			var body QuestionInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			question, err := s.service.UpdateQuestion(ctx, caller, questionID, body)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, question)
			return
		case http.MethodDelete:
			if err := s.service.DeleteQuestion(ctx, caller, questionID); err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost && (parts[1] == "publish" || parts[1] == "close") {
		publish := s.service.PublishQuestion
		if parts[1] == "close" {
			publish = s.service.CloseQuestion
		}
		question, err := publish(ctx, caller, questionID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, question)
		return
	}

	if len(parts) == 2 && parts[1] == "answers" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListAnswers(ctx, caller, questionID)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		case http.MethodPost:
			var body SubmitInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SubmitAnswer(ctx, caller, questionID, body)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			status := http.StatusOK
			if result.Created {
				status = http.StatusCreated
			}
			writeJSON(w, status, result)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) >= 2 && parts[1] == "compilation" {
		s.routeCompilation(w, r, caller, questionID, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeCompilation(w http.ResponseWriter, r *http.Request, caller workflow.Caller, questionID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 && r.Method == http.MethodGet {
		compilation, err := s.service.GetCompilation(ctx, caller, questionID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, compilation)
		return
	}

	if len(parts) == 0 && r.Method == http.MethodPut {
		var body CompilationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		question, err := s.service.SaveCompilation(ctx, caller, questionID, body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, question)
		return
	}

	if len(parts) == 1 && parts[0] == "approve" && r.Method == http.MethodPost {
		question, err := s.service.ApproveCompilation(ctx, caller, questionID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, question)
		return
	}

	if len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet {
		result, err := s.service.ExportCompilation(ctx, caller, questionID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
