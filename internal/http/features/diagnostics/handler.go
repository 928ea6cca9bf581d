package diagnostics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/internal/http/features/common"
	"github.com/tendant/tenant-invite/internal/http/middleware"
	"github.com/tendant/tenant-invite/internal/httputil"
	"github.com/tendant/tenant-invite/pkg/domain"
	"github.com/tendant/tenant-invite/pkg/invite"
)

// Service is the part of *invite.Reconciler the handler uses.
type Service interface {
	RunDiagnostic(ctx context.Context, accountID uuid.UUID) (*invite.DiagnosticInfo, error)
	AttemptManualLink(ctx context.Context, accountID uuid.UUID) (*domain.LinkResult, error)
}

// Handler handles account link diagnostics.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler creates a new diagnostics handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// LinkResponse is returned by a successful manual link.
type LinkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// RegisterRoutes registers the diagnostic routes. The caller applies Auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/diagnostics/accounts/{accountID}", h.Diagnose)
	r.Post("/v1/diagnostics/accounts/{accountID}/link", h.Link)
}

// Diagnose reports the link state of an account.
// GET /v1/diagnostics/accounts/{accountID}
func (h *Handler) Diagnose(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	info, err := h.service.RunDiagnostic(r.Context(), accountID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, info)
}

// Link attempts to repair an unlinked account.
// POST /v1/diagnostics/accounts/{accountID}/link
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	result, err := h.service.AttemptManualLink(r.Context(), accountID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("manual link completed",
		"account_id", accountID,
		"warning", result.Warning,
	)
	httputil.JSON(w, http.StatusOK, LinkResponse{
		Success: true,
		Message: result.UserMessage(),
		Warning: string(result.Warning),
	})
}

// authorize lets an account inspect itself; landlords may inspect any account.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, ok := common.UUIDParam(w, r, "accountID")
	if !ok {
		return uuid.Nil, false
	}

	caller, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	if caller != accountID && !middleware.IsLandlord(r.Context()) {
		httputil.Error(w, http.StatusForbidden, "forbidden")
		return uuid.Nil, false
	}
	return accountID, true
}
