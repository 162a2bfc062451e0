// Package http wires the identity provider's endpoints. Handlers translate
// between the JSON wire surface and the service layer; services never touch
// the ResponseWriter.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/httpx"
	"github.com/lanternhq/lantern/pkg/jwtx"
	"github.com/lanternhq/lantern/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	SignupService      *service.SignupService
	SignInService      *service.SignInService
	SessionService     *service.SessionService
	DeanonymizeService *service.DeanonymizeService
	PasswordService    *service.PasswordService
	MFAService         *service.MFAService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSignup()
	r.registerSignin()
	r.registerSession()
	r.registerUser()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSignup() {
	h := &SignupHandler{SignupService: r.SignupService}

	// Public registration endpoint, strict limit against address probing.
	r.Mux.Handle("POST /signup/email-password",
		httpx.Chain(http.HandlerFunc(h.HandleEmailPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /user/email/send-verification-email",
		httpx.Chain(http.HandlerFunc(h.HandleSendVerificationEmail),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSignin() {
	h := &SignInHandler{SignInService: r.SignInService}

	// Credential-bearing endpoints get the strict limit; they are the
	// brute-force surface.
	r.Mux.Handle("POST /signin/email-password",
		httpx.Chain(http.HandlerFunc(h.HandleEmailPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /signin/anonymous",
		httpx.Chain(http.HandlerFunc(h.HandleAnonymous),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /signin/passwordless/email",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordlessEmail),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /signin/otp",
		httpx.Chain(http.HandlerFunc(h.HandleOTP),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /signin/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleMFATOTP),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Ticket redemption: magic links and verify-email links land here.
	verifyHandler := &VerifyHandler{SignInService: r.SignInService}
	r.Mux.Handle("GET /verify",
		httpx.Chain(http.HandlerFunc(verifyHandler.HandleGet),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /user/email/verify",
		httpx.Chain(http.HandlerFunc(verifyHandler.HandlePost),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSession() {
	h := &TokenHandler{SessionService: r.SessionService}

	r.Mux.Handle("POST /token",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /signout",
		httpx.Chain(http.HandlerFunc(h.HandleSignOut),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUser() {
	deanonHandler := &DeanonymizeHandler{DeanonymizeService: r.DeanonymizeService}
	r.Mux.Handle("POST /user/deanonymize",
		httpx.Chain(http.HandlerFunc(deanonHandler.Handle),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	pwHandler := &PasswordHandler{
		PasswordService: r.PasswordService,
		Verifier:        r.verifier,
	}
	r.Mux.Handle("POST /user/password/reset",
		httpx.Chain(http.HandlerFunc(pwHandler.HandleResetRequest),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	// Accepts either a bearer token or a reset ticket, so authn is
	// resolved inside the handler.
	r.Mux.Handle("POST /user/password",
		httpx.Chain(http.HandlerFunc(pwHandler.HandleChange),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	r.Mux.Handle("POST /mfa/totp/generate",
		httpx.Chain(http.HandlerFunc(h.HandleGenerate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	// Strict limit: this is where TOTP codes get brute-forced.
	r.Mux.Handle("POST /user/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleManage),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
