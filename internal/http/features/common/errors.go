// Package common holds helpers shared by the HTTP feature handlers.
package common

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/internal/httputil"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// Error codes sent to clients.
const (
	CodeInvitationNotFound    = "invitation_not_found"
	CodeInvitationExpired     = "invitation_expired"
	CodeInvitationNotPending  = "invitation_not_pending"
	CodeDuplicateInvitation   = "duplicate_active_invitation"
	CodeEmailMismatch         = "email_mismatch"
	CodeTenantNotFound        = "tenant_not_found"
	CodeTenantLinkedElsewhere = "tenant_linked_to_other_account"
	CodeAccountNotFound       = "account_not_found"
	CodeEmailRegistered       = "email_already_registered"
	CodeWeakCredential        = "weak_credential"
	CodeInvalidEmail          = "invalid_email"
	CodeProviderError         = "provider_error"
	CodeLinkFailed            = "link_failed"
	CodeInternal              = "internal_error"
)

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// Messages are fixed. Backend error text is only ever logged.
var mappings = []mapping{
	{domain.ErrInvitationNotFound, http.StatusNotFound, CodeInvitationNotFound, "invitation not found"},
	{domain.ErrInvitationExpired, http.StatusGone, CodeInvitationExpired, "this invitation has expired. please ask your landlord to resend it"},
	{domain.ErrInvitationNotPending, http.StatusConflict, CodeInvitationNotPending, "this invitation is no longer valid"},
	{domain.ErrDuplicateActiveInvitation, http.StatusConflict, CodeDuplicateInvitation, "an active invitation already exists for this tenant"},
	{domain.ErrInvitationEmailMismatch, http.StatusBadRequest, CodeEmailMismatch, "email does not match the tenant's email"},
	{domain.ErrTenantNotFound, http.StatusNotFound, CodeTenantNotFound, "tenant not found"},
	{domain.ErrTenantLinkedToOtherAccount, http.StatusConflict, CodeTenantLinkedElsewhere, "tenant is already linked to another account"},
	{domain.ErrAccountNotFound, http.StatusNotFound, CodeAccountNotFound, "account not found"},
	{domain.ErrEmailAlreadyRegistered, http.StatusConflict, CodeEmailRegistered, "an account with this email already exists. please contact your landlord to link it"},
	{domain.ErrInvalidEmail, http.StatusBadRequest, CodeInvalidEmail, "invalid email address"},
	{domain.ErrProviderError, http.StatusBadGateway, CodeProviderError, "account service is unavailable. please try again later"},
}

// Problem is the client-facing description of an error.
type Problem struct {
	Status  int
	Code    string
	Message string
}

// Describe maps err onto a status, code and fixed message. Unknown errors
// are logged and described as a generic internal error.
func Describe(logger *slog.Logger, err error) Problem {
	var linkErr *domain.LinkError
	if errors.As(err, &linkErr) {
		return Problem{LinkStatus(linkErr.Result), CodeLinkFailed, linkErr.Result.UserMessage()}
	}

	// policy failures carry actionable text produced by the password policy
	if errors.Is(err, domain.ErrWeakCredential) {
		return Problem{http.StatusBadRequest, CodeWeakCredential, err.Error()}
	}

	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return Problem{m.status, m.code, m.message}
		}
	}

	if logger != nil && !errors.Is(err, domain.ErrDatabaseError) {
		logger.Error("unmapped handler error", "error", err)
	}
	return Problem{http.StatusInternalServerError, CodeInternal, "an internal error occurred. please try again later"}
}

// WriteError writes the JSON error reply for err.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	p := Describe(logger, err)
	httputil.ErrorCode(w, p.Status, p.Code, p.Message)
}

// LinkStatus picks the HTTP status for a failed link.
func LinkStatus(result *domain.LinkResult) int {
	switch result.ErrorCode {
	case domain.LinkErrTenantNotFound, domain.LinkErrUserNotFound:
		return http.StatusNotFound
	case domain.LinkErrEmailMismatch, domain.LinkErrAlreadyLinkedOtherUser:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// UUIDParam parses a chi URL parameter as a UUID, writing a 400 on failure.
func UUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
