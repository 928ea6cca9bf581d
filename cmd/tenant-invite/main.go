package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/tenant-invite/idm"
	"github.com/tendant/tenant-invite/internal/config"
	"github.com/tendant/tenant-invite/internal/notification"
	"github.com/tendant/tenant-invite/pkg/invite"
	"github.com/tendant/tenant-invite/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	// Initialize email service if configured
	var dispatcher invite.Dispatcher
	if cfg.HasSMTP() {
		dispatcher = notification.NewEmailService(notification.EmailConfigFromSMTP(cfg.SMTP))
		logger.Info("email service enabled")
	} else {
		logger.Warn("SMTP not configured, invitations will be created without delivery")
	}

	svc, err := idm.New(idm.Config{
		DB:                   db,
		JWTSecret:            cfg.JWTSecret,
		JWTIssuer:            cfg.JWTIssuer,
		AppOrigin:            cfg.AppOrigin,
		InvitationTTL:        cfg.InvitationTTL,
		CallTimeout:          cfg.ExternalCallTimeout,
		Dispatcher:           dispatcher,
		PasswordPolicy:       cfg.PasswordPolicy,
		EmailValidation:      cfg.Email,
		ServeUI:              cfg.ServeUI,
		TemplatesDir:         cfg.TemplatesDir,
		RateLimit:            cfg.RateLimit,
		SecurityHeaders:      cfg.SecurityHeaders,
		Validation:           cfg.Validation,
		SkipSchemaValidation: !cfg.ValidateSchema,
		Logger:               logger,
	})
	if err != nil {
		logger.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      svc.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + 2*cfg.ExternalCallTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
