package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// TokenHandler serves refresh-token rotation and sign-out.
type TokenHandler struct {
	SessionService *service.SessionService
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh serves POST /token. The presented refresh token is rotated:
// the response carries its replacement and a fresh access token, and the
// presented value stops working.
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	session, err := h.SessionService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

type signOutRequest struct {
	RefreshToken string `json:"refreshToken"`
	All          bool   `json:"all"`
}

// HandleSignOut serves POST /signout. With all=true every session of the
// token's owner is revoked, otherwise just the presented session's family.
// Unknown tokens still get a 200: sign-out is idempotent.
func (h *TokenHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	var req signOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	var err error
	if req.All {
		err = h.SessionService.RevokeOwner(r.Context(), req.RefreshToken)
	} else {
		err = h.SessionService.Revoke(r.Context(), req.RefreshToken)
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
