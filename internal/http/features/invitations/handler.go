package invitations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/internal/http/features/common"
	"github.com/tendant/tenant-invite/internal/http/middleware"
	"github.com/tendant/tenant-invite/internal/httputil"
	"github.com/tendant/tenant-invite/pkg/auth"
	"github.com/tendant/tenant-invite/pkg/domain"
	"github.com/tendant/tenant-invite/pkg/invite"
)

const maxListLimit = 200

// Service is the part of *invite.Manager the handler uses.
type Service interface {
	Invite(ctx context.Context, tenantID uuid.UUID, email string) (*invite.InviteOutcome, error)
	Resend(ctx context.Context, invitationID uuid.UUID) (*invite.InviteOutcome, error)
	Cancel(ctx context.Context, invitationID uuid.UUID) error
	Accept(ctx context.Context, token, password string) (*invite.AcceptOutcome, error)
	List(ctx context.Context, filter domain.InvitationFilter) ([]*domain.Invitation, error)
	Preview(ctx context.Context, token string) (*invite.InvitationPreview, error)
}

// SessionIssuer mints the tenant token returned by Accept. It is satisfied by
// *auth.TokenVerifier.
type SessionIssuer interface {
	IssueAccessToken(accountID uuid.UUID, email, role string, ttl time.Duration) (string, error)
}

// Handler handles invitation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	sessions SessionIssuer
}

// NewHandler creates a new invitations handler. A nil sessions issuer leaves
// the access token out of accept responses.
func NewHandler(logger *slog.Logger, service Service, sessions SessionIssuer) *Handler {
	return &Handler{logger: logger, service: service, sessions: sessions}
}

// InviteRequest represents an invite request. An empty email means the
// tenant's recorded email.
type InviteRequest struct {
	Email string `json:"email"`
}

// AcceptRequest represents an accept request.
type AcceptRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// InvitationResponse is the public view of an invitation. The token hash is
// never exposed.
type InvitationResponse struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// InviteResponse is returned by Invite and Resend.
type InviteResponse struct {
	Result        string              `json:"result"`
	TenantID      string              `json:"tenant_id"`
	Invitation    *InvitationResponse `json:"invitation,omitempty"`
	InvitationURL string              `json:"invitation_url,omitempty"`
	DeliveryError string              `json:"delivery_error,omitempty"`
	AccountID     string              `json:"account_id,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// PreviewResponse is what the invitee landing page shows.
type PreviewResponse struct {
	InvitationID string    `json:"invitation_id"`
	TenantName   string    `json:"tenant_name"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsValid      bool      `json:"is_valid"`
}

// acceptTokenTTL bounds the tenant token handed out by Accept.
const acceptTokenTTL = auth.DefaultAccessTokenTTL

// Session is the bearer token for the new account.
type Session struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// AcceptResponse is returned by Accept.
type AcceptResponse struct {
	AccountID          string `json:"account_id"`
	TenantID           string `json:"tenant_id"`
	Message            string `json:"message"`
	Warning            string `json:"warning,omitempty"`
	StatusUpdateFailed bool   `json:"status_update_failed,omitempty"`
	Session
}

// AcceptLinkFailedResponse is returned when the account was created but could
// not be linked. The account ID and token let the client run diagnostics.
type AcceptLinkFailedResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	LinkCode  string `json:"link_error_code,omitempty"`
	AccountID string `json:"account_id"`
	Session
}

// Invite handles inviting a tenant.
// POST /v1/tenants/{tenantID}/invitations
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := common.UUIDParam(w, r, "tenantID")
	if !ok {
		return
	}

	var req InviteRequest
	if err := httputil.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteDecodeError(w, err)
		return
	}

	outcome, err := h.service.Invite(r.Context(), tenantID, req.Email)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if outcome.Invitation != nil {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, toInviteResponse(outcome))
}

// List handles listing invitations.
// GET /v1/invitations?tenant_id=&status=pending,expired&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	invitations, err := h.service.List(r.Context(), filter)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	resp := make([]InvitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		resp = append(resp, toInvitationResponse(inv))
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"invitations": resp})
}

// Resend handles regenerating and resending an invitation.
// POST /v1/invitations/{invitationID}/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := common.UUIDParam(w, r, "invitationID")
	if !ok {
		return
	}

	outcome, err := h.service.Resend(r.Context(), invitationID)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, toInviteResponse(outcome))
}

// Cancel handles cancelling a pending invitation.
// POST /v1/invitations/{invitationID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := common.UUIDParam(w, r, "invitationID")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), invitationID); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": string(domain.InvitationStatusCancelled)})
}

// Preview resolves a token for the invitee landing page.
// GET /v1/invitations/token/{token}
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	preview, err := h.service.Preview(r.Context(), token)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, PreviewResponse{
		InvitationID: preview.InvitationID.String(),
		TenantName:   preview.TenantName,
		Email:        preview.Email,
		Status:       string(preview.Status),
		ExpiresAt:    preview.ExpiresAt,
		IsValid:      preview.IsValid,
	})
}

// Accept redeems an invitation token.
// POST /v1/invitations/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if err := httputil.Decode(r, &req); err != nil {
		middleware.WriteDecodeError(w, err)
		return
	}

	if req.Token == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "token and password are required")
		return
	}

	outcome, err := h.service.Accept(r.Context(), req.Token, req.Password)
	if err != nil {
		var linkErr *domain.LinkError
		if errors.As(err, &linkErr) && outcome != nil {
			httputil.JSON(w, common.LinkStatus(linkErr.Result), AcceptLinkFailedResponse{
				Error:     linkErr.Result.UserMessage(),
				Code:      common.CodeLinkFailed,
				LinkCode:  string(linkErr.Result.ErrorCode),
				AccountID: outcome.AccountID.String(),
				Session:   h.session(outcome),
			})
			return
		}
		common.WriteError(w, h.logger, err)
		return
	}

	resp := AcceptResponse{
		AccountID:          outcome.AccountID.String(),
		TenantID:           outcome.TenantID.String(),
		StatusUpdateFailed: outcome.StatusUpdateFailed,
		Session:            h.session(outcome),
	}
	if outcome.Link != nil {
		resp.Message = outcome.Link.UserMessage()
		resp.Warning = string(outcome.Link.Warning)
	}
	httputil.JSON(w, http.StatusCreated, resp)
}

// session issues a tenant token for the accepted account. The account exists
// either way, so a signing failure only drops the token.
func (h *Handler) session(outcome *invite.AcceptOutcome) Session {
	if h.sessions == nil {
		return Session{}
	}
	token, err := h.sessions.IssueAccessToken(outcome.AccountID, outcome.Email, auth.RoleTenant, acceptTokenTTL)
	if err != nil {
		h.logger.Error("failed to issue access token", "account_id", outcome.AccountID, "error", err)
		return Session{}
	}
	return Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(acceptTokenTTL / time.Second),
	}
}

func parseFilter(r *http.Request) (domain.InvitationFilter, error) {
	var filter domain.InvitationFilter
	q := r.URL.Query()

	if v := q.Get("tenant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.New("invalid tenant_id")
		}
		filter.TenantID = &id
	}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			status := domain.InvitationStatus(strings.TrimSpace(s))
			if status == "" {
				continue
			}
			if !status.Valid() {
				return filter, errors.New("invalid status")
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filter, errors.New("limit must be between 1 and 200")
		}
		filter.Limit = limit
	}

	return filter, nil
}

func toInviteResponse(outcome *invite.InviteOutcome) InviteResponse {
	resp := InviteResponse{
		Result:   string(outcome.Result),
		TenantID: outcome.TenantID.String(),
	}
	if outcome.Invitation != nil {
		inv := toInvitationResponse(outcome.Invitation)
		resp.Invitation = &inv
		resp.InvitationURL = outcome.URL
	}
	if outcome.DeliveryErr != nil {
		resp.DeliveryError = "the invitation email could not be sent. share the invitation link manually"
	}
	if outcome.AccountID != uuid.Nil {
		resp.AccountID = outcome.AccountID.String()
	}
	if outcome.Link != nil {
		resp.Message = outcome.Link.UserMessage()
	}
	return resp
}

func toInvitationResponse(inv *domain.Invitation) InvitationResponse {
	return InvitationResponse{
		ID:         inv.ID.String(),
		TenantID:   inv.TenantID.String(),
		Email:      inv.Email,
		Status:     string(inv.Status),
		CreatedAt:  inv.CreatedAt,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
	}
}
