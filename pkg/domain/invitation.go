package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvitationTTL is how long an issued or resent invitation token stays valid.
const InvitationTTL = 7 * 24 * time.Hour

// InvitationStatus represents the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusAccepted  InvitationStatus = "accepted"
	InvitationStatusCancelled InvitationStatus = "cancelled"
	InvitationStatusExpired   InvitationStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationStatusPending, InvitationStatusAccepted, InvitationStatusCancelled, InvitationStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible without a resend.
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationStatusAccepted || s == InvitationStatusCancelled
}

// Invitation is a time-boxed, single-active-token invitation for one tenant.
// Only the SHA-256 hash of the token is persisted.
type Invitation struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Email      string
	TokenHash  string
	Status     InvitationStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
	AcceptedAt *time.Time
}

// IsExpired returns true once now has reached ExpiresAt.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// EffectiveStatus folds a stored pending status past its expiry into expired.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationStatusPending && i.IsExpired(now) {
		return InvitationStatusExpired
	}
	return i.Status
}

// IsActive returns true if the invitation is pending and unexpired.
func (i *Invitation) IsActive(now time.Time) bool {
	return i.EffectiveStatus(now) == InvitationStatusPending
}

// InvitationFilter narrows invitation listings. Zero values match everything.
type InvitationFilter struct {
	TenantID *uuid.UUID
	Statuses []InvitationStatus
	Limit    int
}
