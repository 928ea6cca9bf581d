// Package idm wires the tenant invitation service: invitation lifecycle,
// account provisioning, and tenant identity linking.
//
// Setup:
//
//  1. Run migrations from migrations/ folder using your preferred tool
//  2. Create an IDM instance and mount routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	svc, err := idm.New(idm.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	    AppOrigin: "https://portal.example.com",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//
//	http.ListenAndServe(":8080", svc.Router())
//
// With email delivery:
//
//	svc, err := idm.New(idm.Config{
//	    DB:         db,
//	    JWTSecret:  "your-secret-key-at-least-32-chars",
//	    AppOrigin:  "https://portal.example.com",
//	    Dispatcher: notification.NewEmailService(emailConfig),
//	})
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/internal/config"
	httpserver "github.com/tendant/tenant-invite/internal/http"
	"github.com/tendant/tenant-invite/internal/http/middleware"
	"github.com/tendant/tenant-invite/internal/httputil"
	"github.com/tendant/tenant-invite/pkg/auth"
	"github.com/tendant/tenant-invite/pkg/domain"
	"github.com/tendant/tenant-invite/pkg/invite"
	"github.com/tendant/tenant-invite/pkg/repository"
)

// Config holds the configuration for the service.
type Config struct {
	// DB is the database connection (required).
	DB *sql.DB

	// JWTSecret verifies bearer tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the expected issuer claim (default: "tenant-invite").
	JWTIssuer string

	// AppOrigin is the public base URL for invitation links (required).
	AppOrigin string

	// InvitationTTL is the lifetime of issued invitations (default: 7 days).
	InvitationTTL time.Duration

	// CallTimeout bounds each link call, account creation, and dispatch
	// (default: 10 seconds).
	CallTimeout time.Duration

	// Dispatcher delivers invitation emails. Without one, invitations are
	// still created and delivery is reported as failed.
	Dispatcher invite.Dispatcher

	PasswordPolicy  config.PasswordPolicyConfig
	EmailValidation config.EmailValidationConfig

	// HTTP settings used by Router.
	ServeUI         bool
	TemplatesDir    string
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig

	// SkipSchemaValidation disables the startup table and function check.
	SkipSchemaValidation bool

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger

	// Now overrides the clock (default: time.Now).
	Now func() time.Time
}

// IDM is the wired invitation service.
type IDM struct {
	config     Config
	verifier   *auth.TokenVerifier
	manager    *invite.Manager
	reconciler *invite.Reconciler
}

// New creates a service instance. It returns an error if required database
// tables or the linking function don't exist.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if !cfg.SkipSchemaValidation {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
		defer cancel()
		if err := repository.ValidateSchema(ctx, cfg.DB); err != nil {
			return nil, fmt.Errorf("idm: %w", err)
		}
	}

	// Initialize repositories
	accountsRepo := repository.NewAccountsRepository(cfg.DB)
	tenantsRepo := repository.NewTenantsRepository(cfg.DB)
	invitationsRepo := repository.NewInvitationsRepository(cfg.DB).WithClock(cfg.Now)
	linkProcedure := repository.NewLinkProcedure(cfg.DB)

	// Initialize services
	provisioner := auth.NewAccountProvisioner(
		cfg.DB,
		accountsRepo,
		auth.NewPasswordPolicy(cfg.PasswordPolicy),
		auth.WithEmailValidation(cfg.EmailValidation.Strict, cfg.EmailValidation.BlockDisposable),
		auth.WithProvisionerClock(cfg.Now),
	)
	linker := invite.NewLinker(linkProcedure, cfg.CallTimeout, cfg.Logger)

	manager := invite.NewManager(invite.ManagerConfig{
		Invitations: invitationsRepo,
		Tenants:     tenantsRepo,
		Accounts:    accountsRepo,
		Provisioner: provisioner,
		Linker:      linker,
		Issuer:      invite.NewTokenIssuer(cfg.InvitationTTL, cfg.Now),
		Dispatcher:  cfg.Dispatcher,
		AppOrigin:   cfg.AppOrigin,
		CallTimeout: cfg.CallTimeout,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
	})
	reconciler := invite.NewReconciler(accountsRepo, tenantsRepo, linker, cfg.Logger)

	return &IDM{
		config:     cfg,
		verifier:   auth.NewTokenVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		manager:    manager,
		reconciler: reconciler,
	}, nil
}

// Router returns an http.Handler with all routes.
//
// Routes:
//
//	GET  /health                                   - Health check
//	GET  /v1/invitations/token/{token}             - Preview an invitation
//	POST /v1/invitations/accept                    - Accept with a password
//	GET  /invite/{token}                           - Landing page (if ServeUI)
//	POST /v1/tenants/{tenantID}/invitations        - Invite a tenant (landlord)
//	GET  /v1/invitations                           - List invitations (landlord)
//	POST /v1/invitations/{invitationID}/resend     - Resend (landlord)
//	POST /v1/invitations/{invitationID}/cancel     - Cancel (landlord)
//	GET  /v1/diagnostics/accounts/{accountID}      - Link diagnostic (protected)
//	POST /v1/diagnostics/accounts/{accountID}/link - Manual link (protected)
func (i *IDM) Router() http.Handler {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          i.config.Logger,
		Invitations:     i.manager,
		Diagnostics:     i.reconciler,
		Verifier:        i.verifier,
		ServeUI:         i.config.ServeUI,
		TemplatesDir:    i.config.TemplatesDir,
		PasswordHint:    auth.NewPasswordPolicy(i.config.PasswordPolicy).Requirements(),
		RateLimitConfig: i.config.RateLimit,
		SecurityHeaders: i.config.SecurityHeaders,
		Validation:      i.config.Validation,
	})
}

// Routes registers all routes on an http.ServeMux with the given prefix:
//
//	mux := http.NewServeMux()
//	svc.Routes(mux, "/tenants")
func (i *IDM) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, i.Router()))
}

// Manager returns the invitation lifecycle manager for direct use.
func (i *IDM) Manager() *invite.Manager {
	return i.manager
}

// Reconciler returns the link diagnostic service for direct use.
func (i *IDM) Reconciler() *invite.Reconciler {
	return i.reconciler
}

// AuthMiddleware returns middleware that validates bearer tokens.
// Use this to protect your own routes:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(svc.AuthMiddleware())
//	    r.Get("/protected", handler)
//	})
func (i *IDM) AuthMiddleware() func(http.Handler) http.Handler {
	return middleware.Auth(i.verifier)
}

// GetAccountID extracts the account ID from a request.
// Use after AuthMiddleware.
func GetAccountID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetAccountID(r.Context())
}

// HealthHandler returns a simple health check handler.
func (i *IDM) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LinkFailure returns the link result carried by err, if any. Accept and
// AttemptManualLink report failed links this way.
func LinkFailure(err error) (*domain.LinkResult, bool) {
	var linkErr *domain.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Result, true
	}
	return nil, false
}

func validateConfig(cfg *Config) error {
	if cfg.DB == nil {
		return errors.New("idm: DB is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("idm: JWTSecret is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("idm: JWTSecret must be at least 32 characters")
	}
	if cfg.AppOrigin == "" {
		return errors.New("idm: AppOrigin is required")
	}
	origin, err := url.Parse(cfg.AppOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("idm: AppOrigin must be an absolute URL, got %q", cfg.AppOrigin)
	}
	if cfg.InvitationTTL < 0 || cfg.CallTimeout < 0 {
		return errors.New("idm: durations must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.AppOrigin = strings.TrimRight(cfg.AppOrigin, "/")
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "tenant-invite"
	}
	if cfg.InvitationTTL == 0 {
		cfg.InvitationTTL = domain.InvitationTTL
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}
