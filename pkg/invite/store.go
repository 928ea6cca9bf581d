package invite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// InvitationStore persists invitations. Lookups return
// domain.ErrInvitationNotFound when nothing matches.
type InvitationStore interface {
	Create(ctx context.Context, tenantID uuid.UUID, email, tokenHash string, expiresAt time.Time) (*domain.Invitation, error)
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.Invitation, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) error
	Regenerate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) (*domain.Invitation, error)
	List(ctx context.Context, filter domain.InvitationFilter) ([]*domain.Invitation, error)
}

// TenantStore reads tenant records.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetByIdentityID(ctx context.Context, accountID uuid.UUID) (*domain.Tenant, error)
	ListByEmail(ctx context.Context, email string) ([]*domain.Tenant, error)
}

// AccountStore reads accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// Provisioner creates accounts in the identity store.
type Provisioner interface {
	CreateAccount(ctx context.Context, email, password string, metadata domain.AccountMetadata) (uuid.UUID, error)
}
