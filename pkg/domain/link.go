package domain

import (
	"encoding/json"
	"fmt"
)

// LinkErrorCode is the closed set of failure codes returned by the linking procedure.
type LinkErrorCode string

const (
	LinkErrTenantNotFound         LinkErrorCode = "TENANT_NOT_FOUND"
	LinkErrUserNotFound           LinkErrorCode = "USER_NOT_FOUND"
	LinkErrEmailMismatch          LinkErrorCode = "EMAIL_MISMATCH"
	LinkErrAlreadyLinkedOtherUser LinkErrorCode = "ALREADY_LINKED_OTHER_USER"
	LinkErrVerificationFailed     LinkErrorCode = "VERIFICATION_FAILED"
	LinkErrDatabaseError          LinkErrorCode = "DATABASE_ERROR"
)

// LinkWarning flags a successful link that deserves a note.
type LinkWarning string

const (
	LinkWarnAlreadyLinked LinkWarning = "ALREADY_LINKED"
	LinkWarnLegacyFormat  LinkWarning = "LEGACY_FORMAT"
)

// GenericLinkMessage is shown for unknown or missing error codes.
const GenericLinkMessage = "We could not link your account to your tenant record. Please contact support."

var linkMessages = map[LinkErrorCode]string{
	LinkErrTenantNotFound:         "Tenant data not found. Please contact your landlord.",
	LinkErrUserNotFound:           "Your account was not found after creation. Please contact support.",
	LinkErrEmailMismatch:          "The account email does not match the email on your tenant record.",
	LinkErrAlreadyLinkedOtherUser: "This tenant record is already linked to another account.",
	LinkErrVerificationFailed:     "The account link could not be verified. Please contact support.",
	LinkErrDatabaseError:          "A database error occurred while linking your account. Please try again later.",
}

// Known reports whether c is one of the documented codes.
func (c LinkErrorCode) Known() bool {
	_, ok := linkMessages[c]
	return ok
}

// UserMessage returns the fixed end-user message for the code.
func (c LinkErrorCode) UserMessage() string {
	if msg, ok := linkMessages[c]; ok {
		return msg
	}
	return GenericLinkMessage
}

// LinkResult is the normalized outcome of a link attempt.
type LinkResult struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorCode LinkErrorCode   `json:"error_code,omitempty"`
	Warning   LinkWarning     `json:"warning,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// AlreadyLinked reports an idempotent re-link of the same pair.
func (r *LinkResult) AlreadyLinked() bool {
	return r.Success && r.Warning == LinkWarnAlreadyLinked
}

// UserMessage is the text safe to show an end user for this result.
func (r *LinkResult) UserMessage() string {
	if r.Success {
		if r.AlreadyLinked() {
			return "Your account is already linked to your tenant record."
		}
		return "Your account has been linked to your tenant record."
	}
	return r.ErrorCode.UserMessage()
}

// LinkError is returned when a link attempt ends with success=false.
type LinkError struct {
	Result *LinkResult
}

func (e *LinkError) Error() string {
	code := string(e.Result.ErrorCode)
	if code == "" {
		code = "UNKNOWN"
	}
	return fmt.Sprintf("account link failed (%s): %s", code, e.Result.Message)
}

// Is lets errors.Is(err, ErrLinkFailed) match any LinkError.
func (e *LinkError) Is(target error) bool {
	return target == ErrLinkFailed
}
