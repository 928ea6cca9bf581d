package pages

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/tenant-invite/internal/http/features/common"
	"github.com/tendant/tenant-invite/pkg/domain"
	"github.com/tendant/tenant-invite/pkg/invite"
)

//go:embed templates/*.html
var builtin embed.FS

// Service is the invitee side of *invite.Manager.
type Service interface {
	Preview(ctx context.Context, token string) (*invite.InvitationPreview, error)
	Accept(ctx context.Context, token, password string) (*invite.AcceptOutcome, error)
}

// Handler renders the invitation landing page.
type Handler struct {
	logger       *slog.Logger
	service      Service
	templates    *template.Template
	passwordHint string
}

// NewHandler creates a pages handler. An empty templatesDir uses the
// built-in templates. passwordHint is shown under the password fields.
func NewHandler(logger *slog.Logger, service Service, templatesDir, passwordHint string) (*Handler, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatesDir == "" {
		tmpl, err = template.ParseFS(builtin, "templates/*.html")
	} else {
		tmpl, err = template.ParseGlob(filepath.Join(templatesDir, "*.html"))
	}
	if err != nil {
		return nil, err
	}

	return &Handler{
		logger:       logger,
		service:      service,
		templates:    tmpl,
		passwordHint: passwordHint,
	}, nil
}

// PageData holds data for template rendering.
type PageData struct {
	Title        string
	TenantName   string
	Email        string
	ExpiresAt    time.Time
	Valid        bool
	PasswordHint string
	Error        string
	Success      bool
	Message      string
}

// RegisterRoutes registers the landing page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/invite/{token}", h.AcceptPage)
	r.Post("/invite/{token}", h.AcceptSubmit)
}

// AcceptPage renders the set-password form for a token.
// GET /invite/{token}
func (h *Handler) AcceptPage(w http.ResponseWriter, r *http.Request) {
	data, status := h.load(r)
	h.render(w, status, "accept.html", data)
}

// AcceptSubmit redeems the token with the submitted password.
// POST /invite/{token}
func (h *Handler) AcceptSubmit(w http.ResponseWriter, r *http.Request) {
	data, status := h.load(r)
	if !data.Valid {
		h.render(w, status, "accept.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		data.Error = "invalid form submission"
		h.render(w, http.StatusBadRequest, "accept.html", data)
		return
	}
	password := r.PostForm.Get("password")
	if password == "" || password != r.PostForm.Get("confirm_password") {
		data.Error = "passwords do not match"
		h.render(w, http.StatusBadRequest, "accept.html", data)
		return
	}

	outcome, err := h.service.Accept(r.Context(), chi.URLParam(r, "token"), password)
	if err != nil {
		p := common.Describe(h.logger, err)
		var linkErr *domain.LinkError
		if errors.As(err, &linkErr) && outcome != nil {
			// the account exists, so the form must not be offered again
			h.render(w, p.Status, "result.html", PageData{
				Title:   "Almost there",
				Email:   data.Email,
				Message: p.Message,
			})
			return
		}
		data.Error = p.Message
		h.render(w, p.Status, "accept.html", data)
		return
	}

	h.render(w, http.StatusOK, "result.html", PageData{
		Title:   "Welcome",
		Email:   data.Email,
		Success: true,
		Message: outcome.Link.UserMessage(),
	})
}

func (h *Handler) load(r *http.Request) (PageData, int) {
	data := PageData{Title: "Accept your invitation", PasswordHint: h.passwordHint}

	preview, err := h.service.Preview(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		p := common.Describe(h.logger, err)
		data.Error = p.Message
		return data, p.Status
	}

	data.TenantName = preview.TenantName
	data.Email = preview.Email
	data.ExpiresAt = preview.ExpiresAt
	data.Valid = preview.IsValid
	if !preview.IsValid {
		if preview.Status == domain.InvitationStatusExpired {
			data.Error = "this invitation has expired. please ask your landlord to resend it"
			return data, http.StatusGone
		}
		data.Error = "this invitation is no longer valid"
		return data, http.StatusConflict
	}
	return data, http.StatusOK
}

func (h *Handler) render(w http.ResponseWriter, status int, tmpl string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, tmpl, data); err != nil {
		h.logger.Error("failed to render page", "template", tmpl, "error", err)
	}
}
