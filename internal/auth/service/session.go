package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/idx"
	"github.com/lanternhq/lantern/pkg/jwtx"
	"github.com/lanternhq/lantern/pkg/slogx"
)

var (
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
	ErrDisabledUser   = errors.New("disabled_user")
)

// SessionService issues access/refresh token pairs and rotates refresh
// tokens. Refresh tokens are opaque 256-bit values; only fingerprints are
// stored. Rows sharing a family id form one session, and rotation keeps
// exactly one row per family current.
type SessionService struct {
	Store      store.Store
	Signer     jwtx.Signer
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s *SessionService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *SessionService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// Issue mints a fresh session for a user: a new refresh-token family plus a
// signed access token carrying the user's role set.
func (s *SessionService) Issue(ctx context.Context, user domain.User) (*domain.Session, error) {
	now := time.Now()
	familyID := idx.New().String()

	refresh, err := cryptox.GenerateToken(32)
	if err != nil {
		return nil, err
	}

	row := domain.RefreshToken{
		ID:        idx.New().String(),
		FamilyID:  familyID,
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(refresh),
		ExpiresAt: now.Add(s.refreshTTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, row); err != nil {
		return nil, err
	}

	access, err := s.signAccess(user, familyID, now)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:          access,
		AccessTokenExpiresIn: int64(s.accessTTL().Seconds()),
		RefreshToken:         refresh,
		User:                 &user,
	}, nil
}

// Refresh rotates a presented refresh token: the old row is revoked and a
// new row in the same family is written, atomically. Presenting a token that
// is expired, unknown, or already rotated fails, and a replay of a rotated
// token revokes the whole family since it means the token leaked.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*domain.Session, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()
	hash := cryptox.FingerprintToken(presented)

	var (
		session *domain.Session

		// Returning an error from WithTx rolls the rotation back, so a
		// replayed family is remembered here and revoked in its own
		// committed transaction afterwards.
		replay domain.RefreshToken
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		row, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		if row.Revoked {
			// Replay of a rotated token. Someone else holds the live
			// descendant, so burn the entire family.
			replay = row
			return ErrInvalidRefresh
		}
		if now.After(row.ExpiresAt) {
			return ErrInvalidRefresh
		}

		user, err := tx.Users().GetUserByID(ctx, row.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		if user.Disabled {
			return ErrDisabledUser
		}

		// Conditional revoke is the rotation gate: zero rows means a
		// concurrent refresh already rotated this token and it must be
		// treated as replayed.
		if err := tx.RefreshTokens().RevokeCurrentRefreshToken(ctx, hash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				replay = row
				return ErrInvalidRefresh
			}
			return err
		}

		next, err := cryptox.GenerateToken(32)
		if err != nil {
			return err
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID:        idx.New().String(),
			FamilyID:  row.FamilyID,
			UserID:    row.UserID,
			TokenHash: cryptox.FingerprintToken(next),
			ExpiresAt: now.Add(s.refreshTTL()),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		access, err := s.signAccess(user, row.FamilyID, now)
		if err != nil {
			return err
		}

		session = &domain.Session{
			AccessToken:          access,
			AccessTokenExpiresIn: int64(s.accessTTL().Seconds()),
			RefreshToken:         next,
			User:                 &user,
		}
		return nil
	})
	if replay.FamilyID != "" {
		l.Warn("refresh token replay detected, revoking session family",
			slog.String("user_id", replay.UserID),
			slog.String("family_id", replay.FamilyID))
		if rerr := s.Store.RefreshTokens().RevokeFamily(ctx, replay.FamilyID); rerr != nil {
			return nil, rerr
		}
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Revoke signs out the session that presented the given refresh token. The
// whole family goes, not just the presented row. Unknown tokens are a no-op:
// sign-out is idempotent.
func (s *SessionService) Revoke(ctx context.Context, presented string) error {
	hash := cryptox.FingerprintToken(presented)

	row, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeFamily(ctx, row.FamilyID)
}

// RevokeOwner signs the presenting user out everywhere, resolved from the
// refresh token they hold. Unknown tokens are a no-op.
func (s *SessionService) RevokeOwner(ctx context.Context, presented string) error {
	hash := cryptox.FingerprintToken(presented)

	row, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, row.UserID)
}

// RevokeUser signs a user out everywhere.
func (s *SessionService) RevokeUser(ctx context.Context, userID string) error {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
}

func (s *SessionService) signAccess(user domain.User, familyID string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(
		user.ID,
		familyID,
		user.DefaultRole,
		user.AllowedRoles,
		user.IsAnonymous,
		user.Profile,
		s.accessTTL(),
		s.Issuer,
		now,
	)
	return s.Signer.Sign(claims)
}
