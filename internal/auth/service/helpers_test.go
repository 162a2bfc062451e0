package service

import (
	"context"
	"testing"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/internal/auth/store/drivers/sqlite"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// Low-cost hashing keeps the suite fast.
var testArgon = cryptox.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}

const testServerURL = "http://auth.test"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

// stack is the full service graph wired against one in-memory store and a
// recording mailer.
type stack struct {
	store    store.Store
	signer   *jwtx.EdDSASigner
	mailer   *notify.Recorder
	roles    *RolesService
	tickets  *TicketService
	sessions *SessionService
	signup   *SignupService
	signin   *SignInService
	deanon   *DeanonymizeService
	password *PasswordService
	mfa      *MFAService
}

func newTestStack(t *testing.T) *stack {
	t.Helper()

	st := newTestStore(t)
	signer, err := jwtx.NewEphemeralSignerEdDSA("test")
	require.NoError(t, err)

	mailer := &notify.Recorder{}
	roles := &RolesService{
		Universe:       []string{"user", "me", "admin", "anonymous"},
		DefaultRole:    "user",
		DefaultAllowed: []string{"user", "me"},
		AnonymousRole:  "anonymous",
	}
	tickets := &TicketService{Store: st}
	sessions := &SessionService{
		Store:  st,
		Signer: signer,
		Issuer: "test-issuer",
	}
	policy := CredentialPolicy{PasswordMinLength: 9}

	signup := &SignupService{
		Store:         st,
		Roles:         roles,
		Tickets:       tickets,
		Sessions:      sessions,
		Mailer:        mailer,
		Policy:        policy,
		Argon:         testArgon,
		DefaultLocale: "en",
		ServerURL:     testServerURL,
	}
	signin := &SignInService{
		Store:               st,
		Roles:               roles,
		Tickets:             tickets,
		Sessions:            sessions,
		Signup:              signup,
		Mailer:              mailer,
		ServerURL:           testServerURL,
		DefaultLocale:       "en",
		AnonymousEnabled:    true,
		PasswordlessEnabled: true,
	}
	deanon := &DeanonymizeService{
		Store:               st,
		Roles:               roles,
		Tickets:             tickets,
		Sessions:            sessions,
		Mailer:              mailer,
		Policy:              policy,
		Argon:               testArgon,
		ServerURL:           testServerURL,
		PasswordlessEnabled: true,
	}
	password := &PasswordService{
		Store:     st,
		Tickets:   tickets,
		Sessions:  sessions,
		Mailer:    mailer,
		Policy:    policy,
		Argon:     testArgon,
		ServerURL: testServerURL,
	}
	mfa := &MFAService{Store: st, Issuer: "test-issuer"}

	return &stack{
		store:    st,
		signer:   signer,
		mailer:   mailer,
		roles:    roles,
		tickets:  tickets,
		sessions: sessions,
		signup:   signup,
		signin:   signin,
		deanon:   deanon,
		password: password,
		mfa:      mfa,
	}
}

// register creates a verified permanent user ready to sign in.
func (s *stack) register(t *testing.T, email, password string) domain.User {
	t.Helper()
	ctx := context.Background()

	resp, err := s.signup.Register(ctx, SignupInput{Email: email, Password: password})
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	return *resp.Session.User
}
