package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/store"
)

type usersRepo struct {
	db querier
}

const userColumns = `id, email, password_hash, display_name, avatar_url, locale,
	default_role, allowed_roles, is_anonymous, email_verified, disabled,
	profile, totp_secret, mfa_enabled, created_at, updated_at`

func (r *usersRepo) scanUser(row *sql.Row) (domain.User, error) {
	var (
		u            domain.User
		email        sql.NullString
		passwordHash sql.NullString
		allowedRoles string
		profile      sql.NullString
		totpSecret   sql.NullString
	)

	err := row.Scan(
		&u.ID, &email, &passwordHash, &u.DisplayName, &u.AvatarURL, &u.Locale,
		&u.DefaultRole, &allowedRoles, &u.IsAnonymous, &u.EmailVerified, &u.Disabled,
		&profile, &totpSecret, &u.MFAEnabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Email = mapNullString(email)
	u.PasswordHash = mapNullString(passwordHash)
	u.AllowedRoles = splitRoles(allowedRoles)
	u.TOTPSecret = mapNullString(totpSecret)
	u.Profile, err = unmarshalProfile(profile)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	profile, err := marshalProfile(u.Profile)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, display_name, avatar_url, locale,
			default_role, allowed_roles, is_anonymous, email_verified, disabled,
			profile, totp_secret, mfa_enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, mapStringNull(u.Email), mapStringNull(u.PasswordHash),
		u.DisplayName, u.AvatarURL, u.Locale,
		u.DefaultRole, joinRoles(u.AllowedRoles),
		u.IsAnonymous, u.EmailVerified, u.Disabled,
		profile, mapStringNull(u.TOTPSecret), u.MFAEnabled,
		now, now,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) ConvertAnonymousUser(
	ctx context.Context,
	userID string,
	up domain.AnonymousUpgrade,
) error {
	profile, err := marshalProfile(up.Profile)
	if err != nil {
		return err
	}

	// The `is_anonymous = 1` guard makes conversion a conditional state
	// transition: a permanent user can never be converted twice.
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			email = ?,
			password_hash = ?,
			display_name = ?,
			avatar_url = ?,
			locale = ?,
			default_role = ?,
			allowed_roles = ?,
			profile = ?,
			is_anonymous = 0,
			email_verified = 0,
			updated_at = ?
		WHERE id = ? AND is_anonymous = 1`,
		mapStringNull(up.Email), mapStringNull(up.PasswordHash),
		up.DisplayName, up.AvatarURL, up.Locale,
		up.DefaultRole, joinRoles(up.AllowedRoles),
		profile, time.Now().UTC(), userID,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?`,
		verified, time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, userID string, secret string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(secret), time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = 0, totp_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	return err
}
