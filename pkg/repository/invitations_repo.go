package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/tenant-invite/pkg/domain"
)

const invitationColumns = `id, tenant_id, email, token_hash, status, created_at, expires_at, updated_at, accepted_at`

// effectiveStatusExpr folds pending rows past expiry into 'expired'; %d is the "now" placeholder.
const effectiveStatusExpr = `CASE WHEN status = 'pending' AND expires_at <= $%d THEN 'expired' ELSE status END`

// InvitationsRepository handles tenant invitation persistence.
// Every mutation touches a single row; concurrent writers are last-write-wins.
type InvitationsRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewInvitationsRepository creates a new invitations repository.
func NewInvitationsRepository(db *sql.DB) *InvitationsRepository {
	return &InvitationsRepository{db: db, now: time.Now}
}

// WithClock overrides the clock used for expiry comparisons.
func (r *InvitationsRepository) WithClock(now func() time.Time) *InvitationsRepository {
	r.now = nowFunc(now)
	return r
}

// Create inserts a new pending invitation for a tenant.
// Stale pending rows past their expiry are marked expired first; if an unexpired
// pending invitation remains, ErrDuplicateActiveInvitation is returned.
func (r *InvitationsRepository) Create(ctx context.Context, tenantID uuid.UUID, email, tokenHash string, expiresAt time.Time) (*domain.Invitation, error) {
	now := r.now()
	inv := &domain.Invitation{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     email,
		TokenHash: tokenHash,
		Status:    domain.InvitationStatusPending,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		UpdatedAt: now,
	}

	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.expireStaleTx(ctx, tx, tenantID, uuid.Nil, now); err != nil {
			return err
		}

		query := `
			INSERT INTO tenant_invitations (id, tenant_id, email, token_hash, status, created_at, expires_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.ExecContext(ctx, query,
			inv.ID, inv.TenantID, inv.Email, inv.TokenHash, inv.Status,
			inv.CreatedAt, inv.ExpiresAt, inv.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrDuplicateActiveInvitation
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// FindActiveByTenant returns the pending, unexpired invitation for a tenant.
func (r *InvitationsRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM tenant_invitations
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanInvitation(r.db.QueryRowContext(ctx, query, tenantID, r.now()))
}

// FindByTokenHash returns the invitation holding the token, whatever its status,
// so callers can tell a stale or used link from an unknown one.
func (r *InvitationsRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM tenant_invitations
		WHERE token_hash = $1
	`
	return scanInvitation(r.db.QueryRowContext(ctx, query, tokenHash))
}

// GetByID retrieves an invitation by ID.
func (r *InvitationsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM tenant_invitations
		WHERE id = $1
	`
	return scanInvitation(r.db.QueryRowContext(ctx, query, id))
}

// UpdateStatus sets the stored status of an invitation.
func (r *InvitationsRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) error {
	query := `
		UPDATE tenant_invitations
		SET status = $2,
		    updated_at = $3,
		    accepted_at = CASE WHEN $2 = 'accepted' THEN $3 ELSE accepted_at END
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, string(status), r.now())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrInvitationNotFound
	}
	return nil
}

// Regenerate replaces the token and expiry and puts the invitation back to pending.
// The previous token hash is overwritten, so it no longer resolves.
func (r *InvitationsRepository) Regenerate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) (*domain.Invitation, error) {
	now := r.now()
	var inv *domain.Invitation

	err := Tx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanInvitation(tx.QueryRowContext(ctx,
			`SELECT `+invitationColumns+` FROM tenant_invitations WHERE id = $1`, id))
		if err != nil {
			return err
		}

		if err := r.expireStaleTx(ctx, tx, current.TenantID, id, now); err != nil {
			return err
		}

		query := `
			UPDATE tenant_invitations
			SET token_hash = $2, expires_at = $3, status = 'pending', accepted_at = NULL, updated_at = $4
			WHERE id = $1
			RETURNING ` + invitationColumns
		inv, err = scanInvitation(tx.QueryRowContext(ctx, query, id, tokenHash, expiresAt, now))
		if isUniqueViolation(err) {
			return domain.ErrDuplicateActiveInvitation
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns invitations matching the filter, newest first.
// Status filtering uses the effective status, so "expired" includes pending rows past expiry.
func (r *InvitationsRepository) List(ctx context.Context, filter domain.InvitationFilter) ([]*domain.Invitation, error) {
	var args []any
	var where []string

	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, r.now(), pq.Array(statuses))
		expr := fmt.Sprintf(effectiveStatusExpr, len(args)-1)
		where = append(where, fmt.Sprintf("(%s) = ANY($%d)", expr, len(args)))
	}

	query := `SELECT ` + invitationColumns + ` FROM tenant_invitations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// expireStaleTx marks pending invitations of a tenant whose expiry has passed as expired,
// skipping the row identified by keep.
func (r *InvitationsRepository) expireStaleTx(ctx context.Context, q Querier, tenantID, keep uuid.UUID, now time.Time) error {
	query := `
		UPDATE tenant_invitations
		SET status = 'expired', updated_at = $2
		WHERE tenant_id = $1 AND status = 'pending' AND expires_at <= $2 AND id <> $3
	`
	_, err := q.ExecContext(ctx, query, tenantID, now, keep)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var status string
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.TokenHash, &status,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.UpdatedAt, &inv.AcceptedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Status = domain.InvitationStatus(status)
	return inv, nil
}
