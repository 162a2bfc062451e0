package app

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full environment surface of the service. Every knob has a
// workable default so a bare `auth` starts an ephemeral dev instance.
type Config struct {
	Env       string `env:"ENV" env-default:"dev"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`
	Port      int    `env:"PORT" env-default:"8080"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" env-default:"auth.db"`

	Issuer    string `env:"AUTH_ISSUER" env-default:"lantern-auth"`
	ServerURL string `env:"AUTH_SERVER_URL" env-default:"http://localhost:8080"`

	// SigningKeyFile points at a PEM-encoded PKCS8 Ed25519 private key.
	// Empty means an ephemeral key is generated at startup; access tokens
	// then stop verifying across restarts, which refresh tokens absorb.
	SigningKeyFile string `env:"AUTH_SIGNING_KEY_FILE"`
	SigningKeyID   string `env:"AUTH_SIGNING_KEY_ID" env-default:"primary"`

	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" env-default:"720h"`

	DefaultLocale string `env:"AUTH_DEFAULT_LOCALE" env-default:"en"`

	// Role policy. The universe bounds every grant; the anonymous role
	// must be inside it.
	Roles               []string `env:"AUTH_ROLES" env-default:"user,me,anonymous"`
	DefaultRole         string   `env:"AUTH_DEFAULT_ROLE" env-default:"user"`
	DefaultAllowedRoles []string `env:"AUTH_DEFAULT_ALLOWED_ROLES" env-default:"user,me"`
	AnonymousRole       string   `env:"AUTH_ANONYMOUS_ROLE" env-default:"anonymous"`

	DisableSignup        bool `env:"AUTH_DISABLE_SIGNUP" env-default:"false"`
	DisableNewUsers      bool `env:"AUTH_DISABLE_NEW_USERS" env-default:"false"`
	RequireVerifiedEmail bool `env:"AUTH_SIGNIN_EMAIL_VERIFIED_REQUIRED" env-default:"true"`
	AnonymousEnabled     bool `env:"AUTH_ANONYMOUS_USERS_ENABLED" env-default:"false"`
	PasswordlessEnabled  bool `env:"AUTH_EMAIL_PASSWORDLESS_ENABLED" env-default:"false"`

	PasswordMinLength int `env:"AUTH_PASSWORD_MIN_LENGTH" env-default:"9"`

	// Argon2id cost. Raise memory/iterations on hardened deployments.
	Argon2Memory      uint32 `env:"AUTH_ARGON2_MEMORY_KIB" env-default:"65536"`
	Argon2Iterations  uint32 `env:"AUTH_ARGON2_ITERATIONS" env-default:"3"`
	Argon2Parallelism uint8  `env:"AUTH_ARGON2_PARALLELISM" env-default:"2"`

	// SMTP. Host empty disables mail; flows that need it then fail with
	// a server fault rather than silently dropping tickets.
	SMTPHost     string `env:"AUTH_SMTP_HOST"`
	SMTPPort     int    `env:"AUTH_SMTP_PORT" env-default:"587"`
	SMTPUser     string `env:"AUTH_SMTP_USER"`
	SMTPPassword string `env:"AUTH_SMTP_PASS"`
	SMTPSender   string `env:"AUTH_SMTP_SENDER" env-default:"noreply@localhost"`

	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" env-default:"1h"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}
