package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the renter record created by the landlord before any account exists.
// IdentityID is nil until an account has been linked.
type Tenant struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	Email      string
	Name       string
	IdentityID *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsLinked returns true if an account is attached to the tenant.
func (t *Tenant) IsLinked() bool {
	return t.IdentityID != nil && *t.IdentityID != uuid.Nil
}

// IsLinkedTo returns true if the tenant is attached to the given account.
func (t *Tenant) IsLinkedTo(accountID uuid.UUID) bool {
	return t.IsLinked() && *t.IdentityID == accountID
}
