package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// SignupHandler serves registration endpoints.
type SignupHandler struct {
	SignupService *service.SignupService
}

type signupEmailPasswordRequest struct {
	Email        string         `json:"email"`
	Password     string         `json:"password"`
	DisplayName  string         `json:"displayName"`
	Locale       string         `json:"locale"`
	DefaultRole  string         `json:"defaultRole"`
	AllowedRoles []string       `json:"allowedRoles"`
	Profile      map[string]any `json:"profile"`
}

// HandleEmailPassword serves POST /signup/email-password. The response body
// is a sign-in envelope: a session when the user may sign in immediately,
// empty when email verification is pending.
func (h *SignupHandler) HandleEmailPassword(w http.ResponseWriter, r *http.Request) {
	var req signupEmailPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	resp, err := h.SignupService.Register(r.Context(), service.SignupInput{
		Email:        req.Email,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		Locale:       req.Locale,
		DefaultRole:  req.DefaultRole,
		AllowedRoles: req.AllowedRoles,
		Profile:      req.Profile,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

type sendVerificationEmailRequest struct {
	Email string `json:"email"`
}

// HandleSendVerificationEmail serves POST /user/email/send-verification-email.
func (h *SignupHandler) HandleSendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	var req sendVerificationEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SignupService.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
