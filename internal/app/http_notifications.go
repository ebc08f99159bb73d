package app

import (
	"net/http"
	"strconv"

	"answerdesk/api/internal/workflow"
)

func (s *HTTPServer) routeNotifications(w http.ResponseWriter, r *http.Request, caller workflow.Caller, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 && r.Method == http.MethodGet {
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		unreadOnly := query.Get("unread") == "true"
		items, err := s.service.ListNotifications(ctx, caller, unreadOnly, limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) == 1 && parts[0] == "unread-count" && r.Method == http.MethodGet {
		count, err := s.service.UnreadNotificationCount(ctx, caller)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count})
		return
	}

	if len(parts) == 1 && parts[0] == "read-all" && r.Method == http.MethodPost {
		updated, err := s.service.MarkAllNotificationsRead(ctx, caller)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
		return
	}

	if len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost {
		notification, err := s.service.MarkNotificationRead(ctx, caller, parts[0])
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, notification)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) routeUsers(w http.ResponseWriter, r *http.Request, caller workflow.Caller, parts []string) {
	ctx := r.Context()

	if len(parts) == 1 && parts[0] == "pending" && r.Method == http.MethodGet {
		items, err := s.service.ListPendingRegistrations(ctx, caller)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	userID := parts[0]

	switch {
	case parts[1] == "approve" && r.Method == http.MethodPost:
		user, err := s.service.ApproveRegistration(ctx, caller, userID)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	case parts[1] == "reject" && r.Method == http.MethodPost:
		var body RegistrationDecision
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.RejectRegistration(ctx, caller, userID, body)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	case parts[1] == "active" && r.Method == http.MethodPut:
		var body struct {
			IsActive *bool `json:"isActive"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.IsActive == nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "isActive is required", nil)
			return
		}
		user, err := s.service.SetUserActive(ctx, caller, userID, *body.IsActive)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
