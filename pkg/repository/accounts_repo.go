package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// AccountsRepository handles account persistence (users + user_passwords).
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

// CreateTx creates a new account within a transaction.
// A duplicate email returns ErrEmailAlreadyRegistered.
func (r *AccountsRepository) CreateTx(ctx context.Context, q Querier, account *domain.Account) error {
	metadata, err := json.Marshal(account.Metadata)
	if err != nil {
		return fmt.Errorf("marshal account metadata: %w", err)
	}

	query := `
		INSERT INTO users (id, email, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = q.ExecContext(ctx, query,
		account.ID, account.Email, metadata, account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEmailAlreadyRegistered
	}
	return err
}

// CreatePasswordTx stores password credentials within a transaction.
func (r *AccountsRepository) CreatePasswordTx(ctx context.Context, q Querier, cred *domain.AccountPassword) error {
	query := `
		INSERT INTO user_passwords (user_id, password_hash, password_updated_at)
		VALUES ($1, $2, $3)
	`
	_, err := q.ExecContext(ctx, query, cred.AccountID, cred.PasswordHash, cred.PasswordUpdatedAt)
	return err
}

// GetByID retrieves an account by ID.
func (r *AccountsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, email, metadata, created_at, updated_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an account by email.
func (r *AccountsRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, email, metadata, created_at, updated_at
		FROM users
		WHERE lower(email) = lower($1) AND deleted_at IS NULL
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks if an account exists by email.
func (r *AccountsRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var metadata []byte
	err := row.Scan(&account.ID, &account.Email, &metadata, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &account.Metadata); err != nil {
			return nil, fmt.Errorf("decode account metadata: %w", err)
		}
	}
	return account, nil
}
