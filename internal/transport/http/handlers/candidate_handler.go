package handlers

import (
	"errors"
	"net/http"

	candidatesvc "github.com/ivankudzin/amour/internal/services/candidates"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

type CandidateHandler struct {
	service *candidatesvc.Service
}

func NewCandidateHandler(service *candidatesvc.Service) *CandidateHandler {
	return &CandidateHandler{service: service}
}

func (h *CandidateHandler) Next(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, "CANDIDATES_SERVICE_UNAVAILABLE", "candidates service is unavailable")
		return
	}

	candidate, err := h.service.GetCandidate(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, candidatesvc.ErrNoCandidates) {
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    "NO_MORE_CANDIDATES",
				Message: "no more candidates right now",
			})
			return
		}
		httperrors.WriteService(w, err, "failed to load candidate")
		return
	}

	p := candidate.Profile
	photos := make([]dto.CandidatePhoto, 0, len(p.Photos))
	for _, photo := range p.Photos {
		photos = append(photos, dto.CandidatePhoto{URL: photo.URL, Position: photo.Position})
	}
	httperrors.Write(w, http.StatusOK, dto.CandidateResponse{
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		Age:            p.Age,
		Sex:            string(p.Sex),
		Bio:            p.Bio,
		Photos:         photos,
		LeaseExpiresAt: candidate.LeaseExpiresAt,
	})
}
