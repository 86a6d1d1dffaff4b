package handlers

import (
	"net/http"

	"github.com/ivankudzin/amour/internal/domain/model"
	"github.com/ivankudzin/amour/internal/services/notifications"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

type NotificationsHandler struct {
	service *notifications.Service
}

func NewNotificationsHandler(service *notifications.Service) *NotificationsHandler {
	return &NotificationsHandler{service: service}
}

func (h *NotificationsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "NOTIFICATIONS_SERVICE_UNAVAILABLE", "notifications service is unavailable")
		return
	}

	summary, err := h.service.Summary(r.Context(), identity.UserID)
	if err != nil {
		httperrors.WriteService(w, err, "failed to load notifications")
		return
	}
	httperrors.Write(w, http.StatusOK, summaryResponse(summary))
}

func (h *NotificationsHandler) MarkMatchesSeen(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "NOTIFICATIONS_SERVICE_UNAVAILABLE", "notifications service is unavailable")
		return
	}

	summary, err := h.service.MarkMatchesSeen(r.Context(), identity.UserID)
	if err != nil {
		httperrors.WriteService(w, err, "failed to update notifications")
		return
	}
	httperrors.Write(w, http.StatusOK, summaryResponse(summary))
}

func summaryResponse(s model.NotificationSummary) dto.NotificationSummaryResponse {
	return dto.NotificationSummaryResponse{UnreadMessages: s.UnreadMessages, NewMatches: s.NewMatches}
}
