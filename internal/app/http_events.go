package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const eventHeartbeat = 25 * time.Second

// handleEvents streams live events as Server-Sent Events. Browsers cannot
// set headers on EventSource, so the token may also come as ?token=.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE", "Live events are not enabled", nil)
		return
	}
	if bearerToken(r) == "" {
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	scopes, err := s.service.EventScopes(r.Context(), session.Caller(), r.URL.Query()["question"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	controller := http.NewResponseController(w)
	// The server-wide write timeout would cut long-lived streams.
	_ = controller.SetWriteDeadline(time.Time{})
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := controller.Flush(); err != nil {
		s.logger.Warn("event stream unsupported", "request_id", requestIDFrom(r.Context()), "error", err)
		return
	}

	sub := s.hub.Subscribe(scopes...)
	defer sub.Close()

	ticker := time.NewTicker(eventHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case evt, open := <-sub.Events:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Name, evt.Payload); err != nil {
				return
			}
		}
		if err := controller.Flush(); err != nil {
			return
		}
	}
}
