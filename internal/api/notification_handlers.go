package api

import (
	"net/http"

	"custody-workflow-go/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": s.relay.List(claims.Subject),
		"unread":        s.relay.UnreadCount(claims.Subject),
	})
}

func (s *Server) handleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if err := s.hub.Serve(w, r, claims.Subject); err != nil {
		zap.L().Warn("Websocket upgrade failed", zap.Error(err))
	}
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if !s.relay.MarkRead(claims.Subject, chi.URLParam(r, "id")) {
		writeError(w, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	s.relay.MarkAllRead(claims.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if !s.relay.Delete(claims.Subject, chi.URLParam(r, "id")) {
		writeError(w, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	s.relay.Clear(claims.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
