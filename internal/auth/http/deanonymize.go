package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// DeanonymizeHandler serves POST /user/deanonymize. Requires a bearer token
// belonging to an anonymous user.
type DeanonymizeHandler struct {
	DeanonymizeService *service.DeanonymizeService
}

type deanonymizeRequest struct {
	SignInMethod string   `json:"signInMethod"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Mode         string   `json:"mode"`
	DefaultRole  string   `json:"defaultRole"`
	AllowedRoles []string `json:"allowedRoles"`
}

func (h *DeanonymizeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		apierror.ErrUnauthenticated.WriteError(w)
		return
	}

	var req deanonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	mode := service.PasswordlessLink
	if req.Mode == string(service.PasswordlessCode) {
		mode = service.PasswordlessCode
	}

	resp, err := h.DeanonymizeService.Deanonymize(r.Context(), userID, service.DeanonymizeInput{
		Method:       req.SignInMethod,
		Email:        req.Email,
		Password:     req.Password,
		Mode:         mode,
		DefaultRole:  req.DefaultRole,
		AllowedRoles: req.AllowedRoles,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
