package invitations

import (
	"github.com/go-chi/chi/v5"
)

// RegisterLandlordRoutes registers the invitation management routes. The
// caller applies authentication and role checks.
func (h *Handler) RegisterLandlordRoutes(r chi.Router) {
	r.Post("/v1/tenants/{tenantID}/invitations", h.Invite)
	r.Get("/v1/invitations", h.List)
	r.Post("/v1/invitations/{invitationID}/resend", h.Resend)
	r.Post("/v1/invitations/{invitationID}/cancel", h.Cancel)
}

// RegisterPublicRoutes registers the token-holder routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/v1/invitations/token/{token}", h.Preview)
	r.Post("/v1/invitations/accept", h.Accept)
}
