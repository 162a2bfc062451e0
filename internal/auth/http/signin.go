package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// SignInHandler serves every sign-in method.
type SignInHandler struct {
	SignInService *service.SignInService
}

type signinEmailPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleEmailPassword serves POST /signin/email-password.
func (h *SignInHandler) HandleEmailPassword(w http.ResponseWriter, r *http.Request) {
	var req signinEmailPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	resp, err := h.SignInService.EmailPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type signinAnonymousRequest struct {
	DisplayName string `json:"displayName"`
	Locale      string `json:"locale"`
}

// HandleAnonymous serves POST /signin/anonymous.
func (h *SignInHandler) HandleAnonymous(w http.ResponseWriter, r *http.Request) {
	var req signinAnonymousRequest
	// Body is optional for anonymous sign-in.
	_ = json.NewDecoder(r.Body).Decode(&req)

	resp, err := h.SignInService.Anonymous(r.Context(), req.DisplayName, req.Locale)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type signinPasswordlessRequest struct {
	Email        string         `json:"email"`
	Mode         string         `json:"mode"`
	DisplayName  string         `json:"displayName"`
	Locale       string         `json:"locale"`
	DefaultRole  string         `json:"defaultRole"`
	AllowedRoles []string       `json:"allowedRoles"`
	Profile      map[string]any `json:"profile"`
}

// HandlePasswordlessEmail serves POST /signin/passwordless/email. The mail
// goes out and the body says nothing else, whether the challenge is a link
// or a code.
func (h *SignInHandler) HandlePasswordlessEmail(w http.ResponseWriter, r *http.Request) {
	var req signinPasswordlessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	mode := service.PasswordlessLink
	if req.Mode == string(service.PasswordlessCode) {
		mode = service.PasswordlessCode
	}

	err := h.SignInService.PasswordlessEmail(r.Context(), req.Email, mode, service.SignupInput{
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
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signinOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// HandleOTP serves POST /signin/otp, the code half of passwordless email.
func (h *SignInHandler) HandleOTP(w http.ResponseWriter, r *http.Request) {
	var req signinOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.OTP == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	resp, err := h.SignInService.OTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type signinMFARequest struct {
	Ticket string `json:"ticket"`
	OTP    string `json:"otp"`
}

// HandleMFATOTP serves POST /signin/mfa/totp, completing a challenged
// password sign-in.
func (h *SignInHandler) HandleMFATOTP(w http.ResponseWriter, r *http.Request) {
	var req signinMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticket == "" || req.OTP == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	resp, err := h.SignInService.MFATOTP(r.Context(), req.Ticket, req.OTP)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
