package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/tenant-invite/internal/config"
	"github.com/tendant/tenant-invite/internal/httputil"
)

// Limiter names returned by CreateRateLimiters.
const (
	LimiterPublic = "public"
	LimiterAdmin  = "admin"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	KeyFuncs []httprate.KeyFunc
	Logger   *slog.Logger
}

// RateLimit creates a rate limiter middleware with logging. Without key
// functions requests are counted per client IP.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFuncs := cfg.KeyFuncs
	if len(keyFuncs) == 0 {
		keyFuncs = []httprate.KeyFunc{httprate.KeyByIP}
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(keyFuncs...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// KeyByAccount keys authenticated requests by account and falls back to the
// client IP. It must run after Auth.
func KeyByAccount(r *http.Request) (string, error) {
	if id, ok := GetAccountID(r.Context()); ok {
		return "account:" + id.String(), nil
	}
	return httprate.KeyByIP(r)
}

// CreateRateLimiters creates the public and admin limiters from configuration.
// Public routes are keyed by IP, admin routes by account.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimiterPublic: noOp,
			LimiterAdmin:  noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		LimiterPublic: RateLimit(RateLimitConfig{
			Requests: cfg.PublicRequestsPerMinute,
			Window:   time.Duration(cfg.PublicWindowMinutes) * time.Minute,
			Logger:   logger,
		}),
		LimiterAdmin: RateLimit(RateLimitConfig{
			Requests: cfg.AdminRequestsPerMinute,
			Window:   time.Duration(cfg.AdminWindowMinutes) * time.Minute,
			KeyFuncs: []httprate.KeyFunc{KeyByAccount},
			Logger:   logger,
		}),
	}
}
