package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
	"github.com/lanternhq/lantern/pkg/jwtx"
)

// PasswordHandler serves password reset and change. The change endpoint
// authenticates either way: a bearer token for logged-in callers, or a
// reset ticket from mail.
type PasswordHandler struct {
	PasswordService *service.PasswordService
	Verifier        jwtx.Verifier
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// HandleResetRequest serves POST /user/password/reset.
func (h *PasswordHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.PasswordService.RequestReset(r.Context(), req.Email); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type passwordChangeRequest struct {
	NewPassword string `json:"newPassword"`
	Ticket      string `json:"ticket"`
}

// HandleChange serves POST /user/password.
func (h *PasswordHandler) HandleChange(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	if req.Ticket != "" {
		if err := h.PasswordService.ResetWithTicket(r.Context(), req.Ticket, req.NewPassword); err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	userID, ok := h.bearerSubject(r)
	if !ok {
		apierror.ErrUnauthenticated.WriteError(w)
		return
	}
	if err := h.PasswordService.Change(r.Context(), userID, req.NewPassword); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PasswordHandler) bearerSubject(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	claims, err := h.Verifier.Verify(strings.TrimSpace(strings.TrimPrefix(authz, "Bearer")))
	if err != nil {
		return "", false
	}
	if err := claims.ValidateExpiry(); err != nil {
		return "", false
	}
	return claims.Subject, true
}
