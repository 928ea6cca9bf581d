package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	// Database (matches podman setup: make postgres-start)
	DBHost     string `env:"DB_HOST"     envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT"     envDefault:"25432"`
	DBUser     string `env:"DB_USER"     envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME"     envDefault:"tenant_invite"`
	DBSSLMode  string `env:"DB_SSLMODE"  envDefault:"disable"`

	// JWT (bearer tokens for landlord and account routes)
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"tenant-invite"`

	// AppOrigin is the public base URL used to build invitation links.
	AppOrigin string `env:"APP_ORIGIN"`

	// InvitationTTL is the lifetime of a freshly issued or resent invitation.
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"168h"`

	// ExternalCallTimeout bounds each database call and email dispatch.
	ExternalCallTimeout time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"10s"`

	// ValidateSchema checks tables and the linking function on startup.
	ValidateSchema bool `env:"VALIDATE_SCHEMA" envDefault:"true"`

	// ServeUI serves the invitation landing page at /invite/{token}.
	// TemplatesDir overrides the built-in templates.
	ServeUI      bool   `env:"SERVE_UI" envDefault:"true"`
	TemplatesDir string `env:"TEMPLATES_DIR"`

	SMTP            SMTPConfig            `envPrefix:"SMTP_"`
	PasswordPolicy  PasswordPolicyConfig  `envPrefix:"PASSWORD_"`
	Email           EmailValidationConfig `envPrefix:"EMAIL_"`
	RateLimit       RateLimitConfig       `envPrefix:"RATE_LIMIT_"`
	SecurityHeaders SecurityHeadersConfig `envPrefix:"SECURITY_HEADERS_"`
	Validation      ValidationConfig
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"587"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"Tenant Portal"`
}

// PasswordPolicyConfig holds password complexity requirements for new accounts.
type PasswordPolicyConfig struct {
	MinLength        int  `env:"MIN_LENGTH"        envDefault:"8"`
	RequireUppercase bool `env:"REQUIRE_UPPERCASE" envDefault:"false"`
	RequireLowercase bool `env:"REQUIRE_LOWERCASE" envDefault:"false"`
	RequireNumber    bool `env:"REQUIRE_NUMBER"    envDefault:"false"`
	RequireSpecial   bool `env:"REQUIRE_SPECIAL"   envDefault:"false"`
}

// EmailValidationConfig controls how strictly account emails are checked.
type EmailValidationConfig struct {
	Strict          bool `env:"VALIDATION_STRICT" envDefault:"false"`
	BlockDisposable bool `env:"BLOCK_DISPOSABLE"  envDefault:"false"`
}

// RateLimitConfig holds per-route-group request limits.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// Public routes reachable with only an invitation token.
	PublicRequestsPerMinute int `env:"PUBLIC_REQUESTS_PER_MINUTE" envDefault:"10"`
	PublicWindowMinutes     int `env:"PUBLIC_WINDOW_MINUTES"      envDefault:"1"`

	// Authenticated landlord and diagnostic routes.
	AdminRequestsPerMinute int `env:"ADMIN_REQUESTS_PER_MINUTE" envDefault:"60"`
	AdminWindowMinutes     int `env:"ADMIN_WINDOW_MINUTES"      envDefault:"1"`
}

// SecurityHeadersConfig holds response security header values.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"ENABLED" envDefault:"true"`
	CSP                string `env:"CSP" envDefault:"default-src 'none'; frame-ancestors 'none'"`
	HSTSMaxAge         int    `env:"HSTS_MAX_AGE" envDefault:"31536000"`
	FrameOptions       string `env:"FRAME_OPTIONS" envDefault:"DENY"`
	ContentTypeOptions string `env:"CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	XSSProtection      string `env:"XSS_PROTECTION" envDefault:"0"`
	ReferrerPolicy     string `env:"REFERRER_POLICY" envDefault:"no-referrer"`
	PermissionsPolicy  string `env:"PERMISSIONS_POLICY"`
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AppOrigin == "" {
		return nil, fmt.Errorf("APP_ORIGIN is required")
	}
	origin, err := url.Parse(cfg.AppOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("APP_ORIGIN must be an absolute URL, got %q", cfg.AppOrigin)
	}
	cfg.AppOrigin = strings.TrimRight(cfg.AppOrigin, "/")

	if cfg.InvitationTTL <= 0 {
		return nil, fmt.Errorf("INVITATION_TTL must be positive")
	}
	if cfg.ExternalCallTimeout <= 0 {
		return nil, fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be positive")
	}

	return cfg, nil
}

// HasSMTP returns true if outbound email is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTP.Host != "" && c.SMTP.From != ""
}
