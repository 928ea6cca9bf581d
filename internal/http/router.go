package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/tenant-invite/internal/config"
	"github.com/tendant/tenant-invite/internal/http/features/diagnostics"
	"github.com/tendant/tenant-invite/internal/http/features/invitations"
	"github.com/tendant/tenant-invite/internal/http/features/pages"
	"github.com/tendant/tenant-invite/internal/http/middleware"
	"github.com/tendant/tenant-invite/internal/httputil"
	"github.com/tendant/tenant-invite/pkg/auth"
)

// InvitationService is implemented by *invite.Manager.
type InvitationService interface {
	invitations.Service
	pages.Service
}

// TokenService validates bearer tokens and issues the tenant token returned
// by Accept. It is implemented by *auth.TokenVerifier.
type TokenService interface {
	middleware.TokenValidator
	invitations.SessionIssuer
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Invitations     InvitationService
	Diagnostics     diagnostics.Service
	Verifier        TokenService
	ServeUI         bool
	TemplatesDir    string
	// PasswordHint describes the password policy on the landing page.
	PasswordHint    string
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	invitationsHandler := invitations.NewHandler(cfg.Logger, cfg.Invitations, cfg.Verifier)

	// Token-holder routes. Tokens travel in these URLs, so nothing is cached.
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimiterPublic])
		r.Use(middleware.NoStore)
		invitationsHandler.RegisterPublicRoutes(r)

		if cfg.ServeUI {
			pagesHandler, err := pages.NewHandler(cfg.Logger, cfg.Invitations, cfg.TemplatesDir, cfg.PasswordHint)
			if err != nil {
				cfg.Logger.Error("failed to load page templates", "error", err)
			} else {
				pagesHandler.RegisterRoutes(r)
			}
		}
	})

	// Landlord invitation management
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		r.Use(middleware.RequireRole(auth.RoleLandlord))
		r.Use(rateLimiters[middleware.LimiterAdmin])
		invitationsHandler.RegisterLandlordRoutes(r)
	})

	// Account diagnostics; the handler checks ownership
	if cfg.Diagnostics != nil {
		diagnosticsHandler := diagnostics.NewHandler(cfg.Logger, cfg.Diagnostics)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Verifier))
			r.Use(rateLimiters[middleware.LimiterAdmin])
			diagnosticsHandler.RegisterRoutes(r)
		})
	}

	return r
}
