package handlers

import (
	"net/http"
	"time"

	authsvc "github.com/ivankudzin/amour/internal/services/auth"
	"github.com/ivankudzin/amour/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/amour/internal/transport/http/errors"
)

type AuthHandler struct {
	service *authsvc.Service
}

func NewAuthHandler(service *authsvc.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Telegram(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.TelegramAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	res, err := h.service.LoginTelegram(r.Context(), req.InitData)
	if err != nil {
		httperrors.WriteService(w, err, "authentication failed")
		return
	}
	httperrors.Write(w, http.StatusOK, tokensResponse(res))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httperrors.WriteService(w, err, "authentication failed")
		return
	}
	httperrors.Write(w, http.StatusOK, tokensResponse(res))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), identity.SID); err != nil {
		httperrors.WriteService(w, err, "logout failed")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.LogoutAll(r.Context(), identity.UserID); err != nil {
		httperrors.WriteService(w, err, "logout failed")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}

func tokensResponse(res authsvc.AuthResult) dto.AuthTokensResponse {
	return dto.AuthTokensResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresInSec: maxInt64(0, int64(time.Until(res.AccessExpires).Seconds())),
		Me: dto.AuthMeResponse{
			ID:         res.Me.ID,
			TelegramID: res.Me.TelegramID,
			Role:       res.Me.Role,
		},
	}
}
