package handlers

import (
	"net/http"

	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/services/messaging"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

type MatchesHandler struct {
	service  *matchsvc.Service
	messages *messaging.Service
}

func NewMatchesHandler(service *matchsvc.Service, messages *messaging.Service) *MatchesHandler {
	return &MatchesHandler{service: service, messages: messages}
}

func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	items, err := h.service.List(r.Context(), identity.UserID, parseIntOrDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		httperrors.WriteService(w, err, "invalid matches request")
		return
	}

	out := make([]dto.MatchItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.MatchItemResponse{
			ID:             item.ID,
			TargetUserID:   item.TargetUserID,
			DisplayName:    item.DisplayName,
			Age:            item.Age,
			IsPending:      item.IsPending,
			AwaitingMe:     item.AwaitingMe,
			LastMessage:    item.LastMessage,
			LastMessageAt:  item.LastMessageAt,
			UnreadMessages: item.UnreadMessages,
			CreatedAt:      item.CreatedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.MatchesResponse{Items: out})
}

// Messages returns one page of history; page 1 holds the newest messages.
func (h *MatchesHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.messages == nil {
		writeInternal(w, "MESSAGING_SERVICE_UNAVAILABLE", "messaging service is unavailable")
		return
	}
	matchID, ok := pathInt64(r, "match_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return
	}

	q := r.URL.Query()
	page, err := h.messages.Page(r.Context(), identity.UserID, matchID,
		parseIntOrDefault(q.Get("page"), 1),
		parseIntOrDefault(q.Get("page_size"), 0),
	)
	if err != nil {
		httperrors.WriteService(w, err, "invalid messages request")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.MessagesResponse{
		Items:      page.Messages,
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}
