package domain

import "errors"

// Invitation errors
var (
	ErrInvitationNotFound        = errors.New("invitation not found")
	ErrInvitationExpired         = errors.New("invitation expired")
	ErrInvitationNotPending      = errors.New("invitation is no longer pending")
	ErrDuplicateActiveInvitation = errors.New("an active invitation already exists for this tenant")
	ErrInvitationEmailMismatch   = errors.New("invitation email does not match tenant email")
)

// Tenant and account errors
var (
	ErrTenantNotFound             = errors.New("tenant not found")
	ErrTenantLinkedToOtherAccount = errors.New("tenant already linked to another account")
	ErrAccountNotFound            = errors.New("account not found")
)

// Provisioning errors
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrWeakCredential         = errors.New("password does not meet requirements")
	ErrProviderError          = errors.New("identity provider error")
	ErrInvalidEmail           = errors.New("invalid email address")
)

// Linking and infrastructure errors
var (
	ErrLinkFailed          = errors.New("account link failed")
	ErrDatabaseError       = errors.New("database error")
	ErrDeliveryUnavailable = errors.New("notification delivery not configured")
	ErrInvalidToken        = errors.New("invalid token")
)
