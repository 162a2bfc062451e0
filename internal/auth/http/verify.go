package http

import (
	"encoding/json"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/httpx"
)

// VerifyHandler redeems emailed tickets: verify-email confirmations and
// passwordless magic links.
type VerifyHandler struct {
	SignInService *service.SignInService
}

// HandleGet serves GET /verify?ticket=...&type=..., the landing endpoint for
// links in mail. On success the response is the sign-in envelope for the
// ticket's owner.
func (h *VerifyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	kind := domain.TicketKind(r.URL.Query().Get("type"))
	if ticket == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	h.redeem(w, r, ticket, kind)
}

type verifyEmailRequest struct {
	// Email is accepted for wire compatibility but the ticket alone
	// identifies its owner.
	Email  string `json:"email"`
	Ticket string `json:"ticket"`
}

// HandlePost serves POST /user/email/verify for clients that received the
// ticket out of band.
func (h *VerifyHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticket == "" {
		apierror.ErrInvalidRequest.WriteError(w)
		return
	}

	h.redeem(w, r, req.Ticket, domain.TicketVerifyEmail)
}

func (h *VerifyHandler) redeem(w http.ResponseWriter, r *http.Request, ticket string, kind domain.TicketKind) {
	var (
		resp *domain.SignInResponse
		err  error
	)
	switch kind {
	case domain.TicketPasswordlessLink:
		resp, err = h.SignInService.CompletePasswordless(r.Context(), ticket)
	case domain.TicketVerifyEmail:
		resp, err = h.SignInService.VerifyEmail(r.Context(), ticket)
	default:
		apierror.ErrInvalidTicket.WriteError(w)
		return
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
