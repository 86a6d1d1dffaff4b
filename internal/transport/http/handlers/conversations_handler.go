package handlers

import (
	"net/http"

	"github.com/ivankudzin/amour/internal/domain/model"
	matchsvc "github.com/ivankudzin/amour/internal/services/matches"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

// ConversationsHandler covers conversation requests: opening one without a mutual like,
// and the recipient's approve or reject.
type ConversationsHandler struct {
	service *matchsvc.Service
}

func NewConversationsHandler(service *matchsvc.Service) *ConversationsHandler {
	return &ConversationsHandler{service: service}
}

func (h *ConversationsHandler) Request(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	var req dto.TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	res, err := h.service.RequestConversation(r.Context(), identity.UserID, req.TargetID)
	if err != nil {
		httperrors.WriteService(w, err, "invalid conversation request")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httperrors.Write(w, status, dto.ConversationResponse{MatchID: res.MatchID, IsPending: res.IsPending, Created: res.Created})
}

func (h *ConversationsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	identity, matchID, ok := h.matchRequest(w, r)
	if !ok {
		return
	}

	m, err := h.service.Approve(r.Context(), identity, matchID)
	if err != nil {
		httperrors.WriteService(w, err, "invalid approve request")
		return
	}
	httperrors.Write(w, http.StatusOK, matchResponse(m))
}

func (h *ConversationsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	identity, matchID, ok := h.matchRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Reject(r.Context(), identity, matchID); err != nil {
		httperrors.WriteService(w, err, "invalid reject request")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *ConversationsHandler) matchRequest(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return 0, 0, false
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return 0, 0, false
	}
	matchID, ok := pathInt64(r, "match_id")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return 0, 0, false
	}
	return identity.UserID, matchID, true
}

func matchResponse(m model.Match) dto.MatchResponse {
	return dto.MatchResponse{
		ID:            m.ID,
		UserAID:       m.UserAID,
		UserBID:       m.UserBID,
		IsPending:     m.IsPending,
		PendingUserID: m.PendingUserID,
		RequesterID:   m.RequesterID,
		CreatedAt:     m.CreatedAt,
		ApprovedAt:    m.ApprovedAt,
	}
}
