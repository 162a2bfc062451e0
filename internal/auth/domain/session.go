package domain

import "time"

// RefreshToken models one stored refresh-token row. FamilyID persists across
// rotations: the chain of rows sharing a FamilyID is one session family, and
// at most one row per family is current (not revoked) at any time.
type RefreshToken struct {
	ID        string
	FamilyID  string
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the credential pair handed to a signed-in caller.
type Session struct {
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresIn int64  `json:"accessTokenExpiresIn"` // seconds
	RefreshToken         string `json:"refreshToken"`
	User                 *User  `json:"user"`
}

// MFAChallenge is returned instead of a session when sign-in is gated on a
// second factor. The ticket is consumed by the MFA sign-in endpoint.
type MFAChallenge struct {
	Ticket string `json:"ticket"`
}

// SignInResponse is the envelope every sign-in-shaped endpoint returns.
// Session and MFA both nil signals "registered/merged but must complete
// verification before a session is issued".
type SignInResponse struct {
	Session *Session      `json:"session"`
	MFA     *MFAChallenge `json:"mfa"`
}
