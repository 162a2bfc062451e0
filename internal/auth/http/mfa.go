package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// MFAHandler serves TOTP enrolment management for authenticated users.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleGenerate serves POST /mfa/totp/generate: starts enrolment and
// returns the shared secret plus the otpauth URL.
func (h *MFAHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		apierror.ErrUnauthenticated.WriteError(w)
		return
	}

	enrollment, err := h.MFAService.Enroll(r.Context(), userID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

type mfaManageRequest struct {
	Code          string `json:"code"`
	ActiveMFAType string `json:"activeMfaType"`
}

// HandleManage serves POST /user/mfa: activeMfaType "totp" activates the
// gate, empty deactivates it. Both directions demand a valid current code.
func (h *MFAHandler) HandleManage(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		apierror.ErrUnauthenticated.WriteError(w)
		return
	}

	var req mfaManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	var err error
	switch req.ActiveMFAType {
	case "totp":
		err = h.MFAService.Activate(r.Context(), userID, req.Code)
	case "":
		err = h.MFAService.Disable(r.Context(), userID, req.Code)
	default:
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
