package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

const tenantColumns = `id, property_id, email, name, identity_id, created_at, updated_at`

// TenantsRepository reads tenant records. Tenants are created by the landlord elsewhere;
// identity_id is only written by the linking procedure.
type TenantsRepository struct {
	db *sql.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *sql.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

// GetByID retrieves a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1
	`
	return scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetByIdentityID retrieves the tenant linked to an account.
func (r *TenantsRepository) GetByIdentityID(ctx context.Context, accountID uuid.UUID) (*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE identity_id = $1
	`
	return scanTenant(r.db.QueryRowContext(ctx, query, accountID))
}

// ListByEmail retrieves all tenants recorded with an email, unlinked ones first.
func (r *TenantsRepository) ListByEmail(ctx context.Context, email string) ([]*domain.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE lower(email) = lower($1)
		ORDER BY identity_id IS NOT NULL, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := row.Scan(
		&tenant.ID,
		&tenant.PropertyID,
		&tenant.Email,
		&tenant.Name,
		&tenant.IdentityID,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}
