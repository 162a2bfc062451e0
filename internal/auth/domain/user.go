package domain

import "time"

// User is the identity record. Email and PasswordHash are empty while the
// user is anonymous; DefaultRole is always a member of AllowedRoles.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email,omitempty"`
	PasswordHash  string         `json:"-"`
	DisplayName   string         `json:"displayName"`
	AvatarURL     string         `json:"avatarUrl"`
	Locale        string         `json:"locale"`
	DefaultRole   string         `json:"defaultRole"`
	AllowedRoles  []string       `json:"roles"`
	IsAnonymous   bool           `json:"isAnonymous"`
	EmailVerified bool           `json:"emailVerified"`
	Disabled      bool           `json:"-"`
	Profile       map[string]any `json:"profile,omitempty"`
	TOTPSecret    string         `json:"-"`
	MFAEnabled    bool           `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"-"`
}

// AnonymousUpgrade carries the fields written when an anonymous user is
// converted into a permanent one. PasswordHash stays empty for the
// passwordless method.
type AnonymousUpgrade struct {
	Email        string
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	DefaultRole  string
	AllowedRoles []string
	Locale       string
	Profile      map[string]any
}
