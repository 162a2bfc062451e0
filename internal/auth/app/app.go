package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/lanternhq/lantern/internal/auth/http"
	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/internal/auth/store/drivers/sqlite"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/jwtx"
	"github.com/lanternhq/lantern/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the identity provider together: store, signer, services,
// HTTP surface, background workers.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	signer   *jwtx.EdDSASigner
	verifier jwtx.Verifier
	keys     *jwtx.KeySet
	mailer   notify.Mailer

	signupService   *service.SignupService
	signinService   *service.SignInService
	sessionService  *service.SessionService
	deanonService   *service.DeanonymizeService
	passwordService *service.PasswordService
	mfaService      *service.MFAService
	housekeepingSvc *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds an Application from config.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "lantern-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initKeys(); err != nil {
		return nil, err
	}

	app.mailer = notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPSender,
	})

	app.initServices()
	app.initHTTP()

	return app, nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	app.db = db
	return nil
}

func (app *Application) initKeys() error {
	var (
		signer *jwtx.EdDSASigner
		err    error
	)
	if app.cfg.SigningKeyFile != "" {
		pemKey, readErr := os.ReadFile(app.cfg.SigningKeyFile)
		if readErr != nil {
			return fmt.Errorf("read signing key: %w", readErr)
		}
		signer, err = jwtx.NewSignerEdDSA(app.cfg.SigningKeyID, pemKey)
	} else {
		app.logger.Warn("no signing key configured, generating ephemeral key")
		signer, err = jwtx.NewEphemeralSignerEdDSA(app.cfg.SigningKeyID)
	}
	if err != nil {
		return fmt.Errorf("init signing key: %w", err)
	}

	keys := jwtx.NewKeySet()
	keys.Add(signer.KID(), signer.PublicKey())

	app.signer = signer
	app.keys = keys
	app.verifier = jwtx.NewVerifierEdDSA(keys, app.cfg.Issuer)
	return nil
}

func (app *Application) initServices() {
	cfg := app.cfg

	argon := cryptox.Argon2Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
	}
	policy := service.CredentialPolicy{PasswordMinLength: cfg.PasswordMinLength}

	roles := &service.RolesService{
		Universe:       cfg.Roles,
		DefaultRole:    cfg.DefaultRole,
		DefaultAllowed: cfg.DefaultAllowedRoles,
		AnonymousRole:  cfg.AnonymousRole,
	}
	tickets := &service.TicketService{Store: app.db}
	sessions := &service.SessionService{
		Store:      app.db,
		Signer:     app.signer,
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}

	app.sessionService = sessions
	app.signupService = &service.SignupService{
		Store:                app.db,
		Roles:                roles,
		Tickets:              tickets,
		Sessions:             sessions,
		Mailer:               app.mailer,
		Policy:               policy,
		Argon:                argon,
		DefaultLocale:        cfg.DefaultLocale,
		ServerURL:            cfg.ServerURL,
		DisableSignup:        cfg.DisableSignup,
		DisableNewUsers:      cfg.DisableNewUsers,
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
	}
	app.signinService = &service.SignInService{
		Store:                app.db,
		Roles:                roles,
		Tickets:              tickets,
		Sessions:             sessions,
		Signup:               app.signupService,
		Mailer:               app.mailer,
		ServerURL:            cfg.ServerURL,
		DefaultLocale:        cfg.DefaultLocale,
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
		AnonymousEnabled:     cfg.AnonymousEnabled,
		PasswordlessEnabled:  cfg.PasswordlessEnabled,
	}
	app.deanonService = &service.DeanonymizeService{
		Store:                app.db,
		Roles:                roles,
		Tickets:              tickets,
		Sessions:             sessions,
		Mailer:               app.mailer,
		Policy:               policy,
		Argon:                argon,
		ServerURL:            cfg.ServerURL,
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
		PasswordlessEnabled:  cfg.PasswordlessEnabled,
	}
	app.passwordService = &service.PasswordService{
		Store:     app.db,
		Tickets:   tickets,
		Sessions:  sessions,
		Mailer:    app.mailer,
		Policy:    policy,
		Argon:     argon,
		ServerURL: cfg.ServerURL,
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Issuer: cfg.Issuer,
	}
	app.housekeepingSvc = service.NewHousekeepingService(app.db, app.logger, cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keys, app.verifier, BuildVersion, app.db, app.logger)
	router.SignupService = app.signupService
	router.SignInService = app.signinService
	router.SessionService = app.sessionService
	router.DeanonymizeService = app.deanonService
	router.PasswordService = app.passwordService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingSvc.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, the workers, and the store, in that order.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingSvc.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}
