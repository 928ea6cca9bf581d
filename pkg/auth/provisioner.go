package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
	"github.com/tendant/tenant-invite/pkg/repository"
)

// AccountProvisioner creates password-backed accounts in the identity store.
type AccountProvisioner struct {
	db              *sql.DB
	accounts        *repository.AccountsRepository
	policy          *PasswordPolicy
	strictEmail     bool
	blockDisposable bool
	now             func() time.Time
}

// ProvisionerOption configures an AccountProvisioner.
type ProvisionerOption func(*AccountProvisioner)

// WithEmailValidation enables strict format checks and disposable-domain blocking.
func WithEmailValidation(strict, blockDisposable bool) ProvisionerOption {
	return func(p *AccountProvisioner) {
		p.strictEmail = strict
		p.blockDisposable = blockDisposable
	}
}

// WithProvisionerClock overrides the timestamp source.
func WithProvisionerClock(now func() time.Time) ProvisionerOption {
	return func(p *AccountProvisioner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewAccountProvisioner creates a new account provisioner.
func NewAccountProvisioner(db *sql.DB, accounts *repository.AccountsRepository, policy *PasswordPolicy, opts ...ProvisionerOption) *AccountProvisioner {
	p := &AccountProvisioner{
		db:       db,
		accounts: accounts,
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateAccount registers a new account and returns its ID.
//
// Errors: domain.ErrInvalidEmail, domain.ErrWeakCredential,
// domain.ErrEmailAlreadyRegistered, or domain.ErrProviderError wrapping the cause.
func (p *AccountProvisioner) CreateAccount(ctx context.Context, email, password string, metadata domain.AccountMetadata) (uuid.UUID, error) {
	if err := ValidateEmail(email, p.strictEmail, p.blockDisposable); err != nil {
		return uuid.Nil, err
	}
	email = NormalizeEmail(email)

	if err := p.validatePassword(password); err != nil {
		return uuid.Nil, err
	}

	exists, err := p.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, providerError(err)
	}
	if exists {
		return uuid.Nil, domain.ErrEmailAlreadyRegistered
	}

	hash, err := HashPassword(password)
	if err != nil {
		return uuid.Nil, providerError(err)
	}

	now := p.now()
	account := &domain.Account{
		ID:        uuid.New(),
		Email:     email,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &domain.AccountPassword{
		AccountID:         account.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
	}

	err = repository.Tx(ctx, p.db, func(tx *sql.Tx) error {
		if err := p.accounts.CreateTx(ctx, tx, account); err != nil {
			return err
		}
		return p.accounts.CreatePasswordTx(ctx, tx, cred)
	})
	if errors.Is(err, domain.ErrEmailAlreadyRegistered) {
		// lost a race with a concurrent registration
		return uuid.Nil, err
	}
	if err != nil {
		return uuid.Nil, providerError(err)
	}

	return account.ID, nil
}

func (p *AccountProvisioner) validatePassword(password string) error {
	policy := p.policy
	if policy == nil {
		policy = &PasswordPolicy{}
	}
	return policy.ValidatePassword(password)
}

func providerError(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrProviderError, err)
}
