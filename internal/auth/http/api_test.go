package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/internal/auth/store/drivers/sqlite"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/jwtx"
	"github.com/lanternhq/lantern/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// testEnv is one fully wired in-process instance behind an httptest server.
type testEnv struct {
	server *httptest.Server
	mailer *notify.Recorder

	signup *service.SignupService
	signin *service.SignInService
	deanon *service.DeanonymizeService
}

func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewEphemeralSignerEdDSA("test")
	require.NoError(t, err)
	keys := jwtx.NewKeySet()
	keys.Add(signer.KID(), signer.PublicKey())
	verifier := jwtx.NewVerifierEdDSA(keys, "test-issuer")

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Format: "text"})
	mailer := &notify.Recorder{}

	argon := cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}
	policy := service.CredentialPolicy{PasswordMinLength: 9}
	roles := &service.RolesService{
		Universe:       []string{"user", "me", "anonymous"},
		DefaultRole:    "user",
		DefaultAllowed: []string{"user", "me"},
		AnonymousRole:  "anonymous",
	}
	tickets := &service.TicketService{Store: st}
	sessions := &service.SessionService{Store: st, Signer: signer, Issuer: "test-issuer"}

	signup := &service.SignupService{
		Store: st, Roles: roles, Tickets: tickets, Sessions: sessions,
		Mailer: mailer, Policy: policy, Argon: argon,
		DefaultLocale: "en", ServerURL: "http://auth.test",
	}
	signin := &service.SignInService{
		Store: st, Roles: roles, Tickets: tickets, Sessions: sessions,
		Signup: signup, Mailer: mailer,
		ServerURL: "http://auth.test", DefaultLocale: "en",
		AnonymousEnabled: true, PasswordlessEnabled: true,
	}
	deanon := &service.DeanonymizeService{
		Store: st, Roles: roles, Tickets: tickets, Sessions: sessions,
		Mailer: mailer, Policy: policy, Argon: argon,
		ServerURL: "http://auth.test", PasswordlessEnabled: true,
	}

	env := &testEnv{
		mailer: mailer,
		signup: signup,
		signin: signin,
		deanon: deanon,
	}
	for _, opt := range opts {
		opt(env)
	}

	router := NewRouter(keys, verifier, "test", st, logger)
	router.SignupService = signup
	router.SignInService = signin
	router.SessionService = sessions
	router.DeanonymizeService = deanon
	router.PasswordService = &service.PasswordService{
		Store: st, Tickets: tickets, Sessions: sessions,
		Mailer: mailer, Policy: policy, Argon: argon,
		ServerURL: "http://auth.test",
	}
	router.MFAService = &service.MFAService{Store: st, Issuer: "test-issuer"}
	router.ApplyRoutes()

	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)

	return env
}

func withVerificationRequired(env *testEnv) {
	env.signup.RequireVerifiedEmail = true
	env.signin.RequireVerifiedEmail = true
}

func (e *testEnv) post(t *testing.T, path, bearer string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]json.RawMessage {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]json.RawMessage{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return out
}

type wireSession struct {
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresIn int64  `json:"accessTokenExpiresIn"`
	RefreshToken         string `json:"refreshToken"`
	User                 struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		IsAnonymous   bool   `json:"isAnonymous"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"user"`
}

func parseSession(t *testing.T, body map[string]json.RawMessage) *wireSession {
	t.Helper()
	raw, ok := body["session"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var s wireSession
	require.NoError(t, json.Unmarshal(raw, &s))
	return &s
}

func TestAPISignupSignInRefreshSignOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// Register; verification is off, so this returns a live session.
	resp, body := env.post(t, "/signup/email-password", "", map[string]any{
		"email":    "api@example.com",
		"password": "long-enough-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := parseSession(t, body)
	require.NotNil(t, session)
	require.Equal(t, "api@example.com", session.User.Email)

	// Sign in.
	resp, body = env.post(t, "/signin/email-password", "", map[string]any{
		"email":    "api@example.com",
		"password": "long-enough-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session = parseSession(t, body)
	require.NotNil(t, session)

	// Wrong password is a 401 with the generic code.
	resp, body = env.post(t, "/signin/email-password", "", map[string]any{
		"email":    "api@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.JSONEq(t, `"invalid-credentials"`, string(body["error"]))

	// Rotate the refresh token.
	resp, body = env.post(t, "/token", "", map[string]any{"refreshToken": session.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated wireSession
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &rotated))
	require.NotEmpty(t, rotated.RefreshToken)
	require.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// The old one is spent; replaying it is a 401.
	resp, _ = env.post(t, "/token", "", map[string]any{"refreshToken": session.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Sign out is idempotent.
	resp, _ = env.post(t, "/signout", "", map[string]any{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.post(t, "/signout", "", map[string]any{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.post(t, "/token", "", map[string]any{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPISignupWithVerification(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, withVerificationRequired)

	resp, body := env.post(t, "/signup/email-password", "", map[string]any{
		"email":    "gated@example.com",
		"password": "long-enough-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, parseSession(t, body))
	require.JSONEq(t, "null", string(body["mfa"]))

	ticket := env.mailer.Last().Ticket
	require.NotEmpty(t, ticket)

	// Sign-in is gated until the ticket is consumed.
	resp, _ = env.post(t, "/signin/email-password", "", map[string]any{
		"email":    "gated@example.com",
		"password": "long-enough-pw",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.post(t, "/user/email/verify", "", map[string]any{"ticket": ticket})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := parseSession(t, body)
	require.NotNil(t, session)
	require.True(t, session.User.EmailVerified)

	// Ticket replay.
	resp, _ = env.post(t, "/user/email/verify", "", map[string]any{"ticket": ticket})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIAnonymousDeanonymize(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.post(t, "/signin/anonymous", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	anon := parseSession(t, body)
	require.NotNil(t, anon)
	require.True(t, anon.User.IsAnonymous)
	require.Empty(t, anon.User.Email)

	// Deanonymize requires the bearer token.
	resp, _ = env.post(t, "/user/deanonymize", "", map[string]any{
		"signInMethod": "email-password",
		"email":        "merged@example.com",
		"password":     "long-enough-pw",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.post(t, "/user/deanonymize", anon.AccessToken, map[string]any{
		"signInMethod": "email-password",
		"email":        "merged@example.com",
		"password":     "long-enough-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	merged := parseSession(t, body)
	require.NotNil(t, merged)
	require.Equal(t, anon.User.ID, merged.User.ID)
	require.False(t, merged.User.IsAnonymous)

	// The anonymous refresh token died in the merge.
	resp, _ = env.post(t, "/token", "", map[string]any{"refreshToken": anon.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Deanonymizing again is rejected: the user is permanent now.
	resp, body = env.post(t, "/user/deanonymize", merged.AccessToken, map[string]any{
		"signInMethod": "email-password",
		"email":        "again@example.com",
		"password":     "long-enough-pw",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `"user-not-anonymous"`, string(body["error"]))
}

func TestAPIPasswordlessLinkViaVerify(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, _ := env.post(t, "/signin/passwordless/email", "", map[string]any{
		"email": "magic@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := env.mailer.Last()
	require.Equal(t, notify.TemplatePasswordlessLink, msg.Template)

	resp, body := env.get(t, fmt.Sprintf("/verify?ticket=%s&type=passwordless-link", msg.Ticket))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := parseSession(t, body)
	require.NotNil(t, session)
	require.Equal(t, "magic@example.com", session.User.Email)
	require.True(t, session.User.EmailVerified)
}

func TestAPIPasswordReset(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, _ := env.post(t, "/signup/email-password", "", map[string]any{
		"email":    "reset-me@example.com",
		"password": "original-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.post(t, "/user/password/reset", "", map[string]any{"email": "reset-me@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ticket := env.mailer.Last().Ticket

	resp, _ = env.post(t, "/user/password", "", map[string]any{
		"ticket":      ticket,
		"newPassword": "replacement-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.post(t, "/signin/email-password", "", map[string]any{
		"email":    "reset-me@example.com",
		"password": "replacement-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, parseSession(t, body))
}

func TestAPISystemEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.get(t, "/livez")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `"ok"`, string(body["status"]))

	resp, body = env.get(t, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `"ok"`, string(body["status"]))

	resp, body = env.get(t, "/.well-known/jwks.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var keys []map[string]any
	require.NoError(t, json.Unmarshal(body["keys"], &keys))
	require.Len(t, keys, 1)
	require.Equal(t, "OKP", keys[0]["kty"])
	require.Equal(t, "EdDSA", keys[0]["alg"])
}

func TestAPIMalformedBodies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, path := range []string{
		"/signup/email-password",
		"/signin/email-password",
		"/token",
		"/user/email/verify",
	} {
		resp, body := env.post(t, path, "", map[string]any{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		require.JSONEq(t, `"invalid-request"`, string(body["error"]), path)
	}
}
