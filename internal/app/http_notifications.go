package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"recruitcrm/api/internal/metrics"
	"recruitcrm/api/internal/notify"
)

const streamHeartbeat = 25 * time.Second

func (s *HTTPServer) routeNotifications(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		items, unread, err := s.service.ListNotifications(r.Context(), session.UserID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": items, "unread": unread})

	case len(parts) == 1 && parts[0] == "unread-count" && r.Method == http.MethodGet:
		count, err := s.service.UnreadCount(r.Context(), session.UserID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": count})

	case len(parts) == 1 && parts[0] == "read-all" && r.Method == http.MethodPost:
		updated, err := s.service.MarkAllNotificationsRead(r.Context(), session.UserID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})

	case len(parts) == 1 && parts[0] == "stream" && r.Method == http.MethodGet:
		s.handleNotificationStream(w, r, session)

	case len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost:
		if err := s.service.MarkNotificationRead(r.Context(), session.UserID, parts[0]); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleNotificationStream relays live events as Server-Sent Events until the
// client disconnects.
func (s *HTTPServer) handleNotificationStream(w http.ResponseWriter, r *http.Request, session Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}
	events, err := s.service.SubscribeNotifications(r.Context(), session.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	metrics.NotificationStreams.Inc()
	defer metrics.NotificationStreams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if count, err := s.service.UnreadCount(r.Context(), session.UserID); err == nil {
		_ = notify.WriteSSE(w, "unread", map[string]int{"count": count})
	}
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := notify.WriteSSE(w, "notification", event.Notification); err != nil {
				s.logger.Debug("notification stream closed", zap.String("user_id", session.UserID), zap.Error(err))
				return
			}
			_ = notify.WriteSSE(w, "unread", map[string]int{"count": event.Unread})
			flusher.Flush()
		}
	}
}
