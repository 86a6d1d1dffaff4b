package handlers

import (
	"net/http"

	interactionsvc "github.com/ivankudzin/amour/internal/services/interactions"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

type InteractionsHandler struct {
	service *interactionsvc.Service
}

func NewInteractionsHandler(service *interactionsvc.Service) *InteractionsHandler {
	return &InteractionsHandler{service: service}
}

func (h *InteractionsHandler) Like(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.target(w, r)
	if !ok {
		return
	}

	res, err := h.service.Like(r.Context(), identity, req.TargetID)
	if err != nil {
		httperrors.WriteService(w, err, "invalid like request")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.LikeResponse{IsMatch: res.IsMatch, MatchID: res.MatchID})
}

func (h *InteractionsHandler) Skip(w http.ResponseWriter, r *http.Request) {
	identity, req, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.Skip(r.Context(), identity, req.TargetID); err != nil {
		httperrors.WriteService(w, err, "invalid skip request")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *InteractionsHandler) Report(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "INTERACTIONS_SERVICE_UNAVAILABLE", "interactions service is unavailable")
		return
	}

	var req dto.ReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if err := h.service.Report(r.Context(), identity.UserID, req.TargetID, req.Reason, req.Details); err != nil {
		httperrors.WriteService(w, err, "invalid report request")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *InteractionsHandler) target(w http.ResponseWriter, r *http.Request) (int64, dto.TargetRequest, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return 0, dto.TargetRequest{}, false
	}
	if h.service == nil {
		writeInternal(w, "INTERACTIONS_SERVICE_UNAVAILABLE", "interactions service is unavailable")
		return 0, dto.TargetRequest{}, false
	}

	var req dto.TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return 0, dto.TargetRequest{}, false
	}
	return identity.UserID, req, true
}
