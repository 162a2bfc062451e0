package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func testUser(email string) domain.User {
	now := time.Now().UTC()
	return domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$fake",
		DisplayName:  "Test User",
		Locale:       "en",
		DefaultRole:  "user",
		AllowedRoles: []string{"user", "me"},
		Profile:      map[string]any{"plan": "free"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("roundtrip@example.com")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	got, err := st.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.PasswordHash, got.PasswordHash)
	require.Equal(t, []string{"user", "me"}, got.AllowedRoles)
	require.Equal(t, "free", got.Profile["plan"])

	byEmail, err := st.Users().GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = st.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserEmailUniqueness(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Users().CreateUser(ctx, testUser("unique@example.com")))
	err := st.Users().CreateUser(ctx, testUser("unique@example.com"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

// The unique index is partial: any number of anonymous users may coexist
// with NULL emails.
func TestAnonymousUsersShareNullEmail(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		u := testUser("")
		u.Email = ""
		u.PasswordHash = ""
		u.IsAnonymous = true
		u.AllowedRoles = []string{"anonymous"}
		u.DefaultRole = "anonymous"
		require.NoError(t, st.Users().CreateUser(ctx, u))
	}
}

func TestConvertAnonymousUser(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	anon := testUser("")
	anon.Email = ""
	anon.PasswordHash = ""
	anon.IsAnonymous = true
	require.NoError(t, st.Users().CreateUser(ctx, anon))

	up := domain.AnonymousUpgrade{
		Email:        "now-permanent@example.com",
		PasswordHash: "$argon2id$hash",
		DisplayName:  "now-permanent@example.com",
		AvatarURL:    "https://www.gravatar.com/avatar/abc?d=blank&r=g",
		DefaultRole:  "user",
		AllowedRoles: []string{"user", "me"},
		Locale:       "en",
	}
	require.NoError(t, st.Users().ConvertAnonymousUser(ctx, anon.ID, up))

	got, err := st.Users().GetUserByID(ctx, anon.ID)
	require.NoError(t, err)
	require.False(t, got.IsAnonymous)
	require.False(t, got.EmailVerified)
	require.Equal(t, "now-permanent@example.com", got.Email)
	require.Equal(t, up.AvatarURL, got.AvatarURL)

	// Converting twice fails: the user is no longer anonymous.
	require.ErrorIs(t,
		st.Users().ConvertAnonymousUser(ctx, anon.ID, up),
		store.ErrNotFound)
}

func TestConvertAnonymousUserEmailConflict(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Users().CreateUser(ctx, testUser("taken@example.com")))

	anon := testUser("")
	anon.Email = ""
	anon.IsAnonymous = true
	require.NoError(t, st.Users().CreateUser(ctx, anon))

	err := st.Users().ConvertAnonymousUser(ctx, anon.ID, domain.AnonymousUpgrade{
		Email:       "taken@example.com",
		DefaultRole: "user", AllowedRoles: []string{"user"},
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestTicketConditionalConsume(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("ticket-owner@example.com")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	ticket := domain.Ticket{
		ID:        idx.New().String(),
		Kind:      domain.TicketVerifyEmail,
		TokenHash: "hash-1",
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Tickets().CreateTicket(ctx, ticket))

	got, err := st.Tickets().GetTicketByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.False(t, got.Consumed())

	require.NoError(t, st.Tickets().ConsumeTicket(ctx, ticket.ID, time.Now()))

	// Second consume changes zero rows.
	require.ErrorIs(t, st.Tickets().ConsumeTicket(ctx, ticket.ID, time.Now()), store.ErrNotFound)

	got, err = st.Tickets().GetTicketByHash(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, got.Consumed())
}

func TestRefreshTokenConditionalRevoke(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("rt-owner@example.com")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	now := time.Now()
	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		FamilyID:  "fam-1",
		UserID:    u.ID,
		TokenHash: "rt-hash-1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, rt))

	require.NoError(t, st.RefreshTokens().RevokeCurrentRefreshToken(ctx, "rt-hash-1"))
	require.ErrorIs(t,
		st.RefreshTokens().RevokeCurrentRefreshToken(ctx, "rt-hash-1"),
		store.ErrNotFound)

	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "rt-hash-1")
	require.NoError(t, err)
	require.True(t, got.Revoked)
}

func TestRevokeFamilyAndUserScopes(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("families@example.com")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	now := time.Now()
	mk := func(family, hash string) {
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID: idx.New().String(), FamilyID: family, UserID: u.ID,
			TokenHash: hash, ExpiresAt: now.Add(time.Hour),
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	mk("fam-a", "a1")
	mk("fam-a", "a2")
	mk("fam-b", "b1")

	require.NoError(t, st.RefreshTokens().RevokeFamily(ctx, "fam-a"))
	a1, _ := st.RefreshTokens().GetRefreshTokenByHash(ctx, "a1")
	a2, _ := st.RefreshTokens().GetRefreshTokenByHash(ctx, "a2")
	b1, _ := st.RefreshTokens().GetRefreshTokenByHash(ctx, "b1")
	require.True(t, a1.Revoked)
	require.True(t, a2.Revoked)
	require.False(t, b1.Revoked)

	require.NoError(t, st.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID))
	b1, _ = st.RefreshTokens().GetRefreshTokenByHash(ctx, "b1")
	require.True(t, b1.Revoked)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("rollback@example.com")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	_, err = st.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	u := testUser("expiry@example.com")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	now := time.Now()
	require.NoError(t, st.Tickets().CreateTicket(ctx, domain.Ticket{
		ID: idx.New().String(), Kind: domain.TicketVerifyEmail,
		TokenHash: "stale", UserID: u.ID,
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, st.Tickets().CreateTicket(ctx, domain.Ticket{
		ID: idx.New().String(), Kind: domain.TicketVerifyEmail,
		TokenHash: "fresh", UserID: u.ID,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	require.NoError(t, st.Tickets().DeleteExpiredTickets(ctx))

	_, err := st.Tickets().GetTicketByHash(ctx, "stale")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Tickets().GetTicketByHash(ctx, "fresh")
	require.NoError(t, err)
}
