package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is the authentication principal created when a tenant self-registers.
// It holds no reference back to the tenant; the link lives on Tenant.IdentityID.
type Account struct {
	ID        uuid.UUID
	Email     string
	Metadata  AccountMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountMetadata is stored as JSON alongside the account.
type AccountMetadata struct {
	TenantClass bool `json:"tenant_class,omitempty"`
}

// AccountPassword stores password credentials separately from the account.
type AccountPassword struct {
	AccountID         uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}
