// Package invite drives the tenant invitation lifecycle and account linking.
package invite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/auth"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// InviteResult describes how an Invite or Resend call ended.
type InviteResult string

const (
	// InviteSent means a new token was stored and the notification went out.
	InviteSent InviteResult = "sent"
	// InviteDeliveryFailed means the invitation exists but the notification did not go out.
	InviteDeliveryFailed InviteResult = "delivery_failed"
	// InviteAlreadyLinked means the tenant already has an account; nothing was done.
	InviteAlreadyLinked InviteResult = "already_linked"
	// InviteLinkedExistingAccount means an account with the tenant's email existed
	// and was linked directly without an invitation.
	InviteLinkedExistingAccount InviteResult = "linked_existing_account"
)

// InviteOutcome is returned by Invite and Resend.
type InviteOutcome struct {
	Result   InviteResult
	TenantID uuid.UUID

	// Set when a token was issued.
	Invitation  *domain.Invitation
	Token       string
	URL         string
	DeliveryErr error

	// Set on the already-linked and existing-account paths.
	AccountID uuid.UUID
	Link      *domain.LinkResult
}

// AcceptOutcome is returned by Accept.
type AcceptOutcome struct {
	InvitationID uuid.UUID
	TenantID     uuid.UUID
	AccountID    uuid.UUID
	Email        string
	Link         *domain.LinkResult

	// StatusUpdateFailed is set when the link succeeded but the invitation
	// could not be marked accepted.
	StatusUpdateFailed bool
}

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	InvitationID uuid.UUID
	TenantID     uuid.UUID
	TenantName   string
	Email        string
	Status       domain.InvitationStatus
	ExpiresAt    time.Time
	IsValid      bool
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Invitations InvitationStore
	Tenants     TenantStore
	Accounts    AccountStore
	Provisioner Provisioner
	Linker      *Linker
	Issuer      *TokenIssuer

	// Dispatcher may be nil, in which case every delivery is reported as failed.
	Dispatcher Dispatcher

	AppOrigin string

	// CallTimeout bounds account creation and notification dispatch.
	CallTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Manager is the invitation state machine.
type Manager struct {
	invitations InvitationStore
	tenants     TenantStore
	accounts    AccountStore
	provisioner Provisioner
	linker      *Linker
	issuer      *TokenIssuer
	dispatcher  Dispatcher
	appOrigin   string
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a manager from cfg.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == nil {
		cfg.Issuer = NewTokenIssuer(domain.InvitationTTL, cfg.Now)
	}
	return &Manager{
		invitations: cfg.Invitations,
		tenants:     cfg.Tenants,
		accounts:    cfg.Accounts,
		provisioner: cfg.Provisioner,
		linker:      cfg.Linker,
		issuer:      cfg.Issuer,
		dispatcher:  cfg.Dispatcher,
		appOrigin:   cfg.AppOrigin,
		timeout:     cfg.CallTimeout,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Invite invites the tenant to register.
//
// An already-linked tenant yields InviteAlreadyLinked without error. An
// existing account with the tenant's email is linked directly and no
// invitation row is written. An empty email means the tenant's recorded email;
// any other address must match it.
func (m *Manager) Invite(ctx context.Context, tenantID uuid.UUID, email string) (*InviteOutcome, error) {
	tenant, err := m.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, storeError(m.logger, "get tenant", err)
	}

	if tenant.IsLinked() {
		m.logger.Info("invite skipped, tenant already linked",
			"tenant_id", tenant.ID,
			"account_id", *tenant.IdentityID,
		)
		return &InviteOutcome{
			Result:    InviteAlreadyLinked,
			TenantID:  tenant.ID,
			AccountID: *tenant.IdentityID,
		}, nil
	}

	if email == "" {
		email = tenant.Email
	}
	if !auth.EmailsMatch(email, tenant.Email) {
		return nil, domain.ErrInvitationEmailMismatch
	}
	email = auth.NormalizeEmail(email)
	if err := auth.ValidateEmail(email, false, false); err != nil {
		return nil, err
	}

	active, err := m.invitations.FindActiveByTenant(ctx, tenant.ID)
	if err == nil {
		m.logger.Info("invite rejected, active invitation exists",
			"tenant_id", tenant.ID,
			"invitation_id", active.ID,
		)
		return nil, domain.ErrDuplicateActiveInvitation
	}
	if !errors.Is(err, domain.ErrInvitationNotFound) {
		return nil, storeError(m.logger, "find active invitation", err)
	}

	account, err := m.accounts.GetByEmail(ctx, email)
	if err == nil {
		return m.linkExisting(ctx, tenant, account)
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, storeError(m.logger, "get account by email", err)
	}

	token, expiresAt, err := m.issuer.Issue()
	if err != nil {
		return nil, err
	}

	inv, err := m.invitations.Create(ctx, tenant.ID, email, auth.HashToken(token), expiresAt)
	if err != nil {
		return nil, storeError(m.logger, "create invitation", err)
	}

	m.logger.Info("invitation created",
		"invitation_id", inv.ID,
		"tenant_id", tenant.ID,
		"expires_at", inv.ExpiresAt,
	)

	outcome := &InviteOutcome{
		Result:     InviteSent,
		TenantID:   tenant.ID,
		Invitation: inv,
		Token:      token,
		URL:        InvitationURL(m.appOrigin, token),
	}
	m.deliver(ctx, outcome, tenant.Name, false)
	return outcome, nil
}

func (m *Manager) linkExisting(ctx context.Context, tenant *domain.Tenant, account *domain.Account) (*InviteOutcome, error) {
	m.logger.Info("account exists for tenant email, linking directly",
		"tenant_id", tenant.ID,
		"account_id", account.ID,
	)

	result := m.linker.Link(ctx, tenant.ID, account.ID)
	if !result.Success {
		return nil, &domain.LinkError{Result: result}
	}

	return &InviteOutcome{
		Result:    InviteLinkedExistingAccount,
		TenantID:  tenant.ID,
		AccountID: account.ID,
		Link:      result,
	}, nil
}

// Resend issues a new token and expiry and sets the invitation back to pending,
// whatever its previous status. Older tokens stop resolving.
func (m *Manager) Resend(ctx context.Context, invitationID uuid.UUID) (*InviteOutcome, error) {
	inv, err := m.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, storeError(m.logger, "get invitation", err)
	}

	tenant, err := m.tenants.GetByID(ctx, inv.TenantID)
	if err != nil {
		return nil, storeError(m.logger, "get tenant", err)
	}

	token, expiresAt, err := m.issuer.Issue()
	if err != nil {
		return nil, err
	}

	updated, err := m.invitations.Regenerate(ctx, inv.ID, auth.HashToken(token), expiresAt)
	if err != nil {
		return nil, storeError(m.logger, "regenerate invitation", err)
	}

	m.logger.Info("invitation regenerated",
		"invitation_id", updated.ID,
		"tenant_id", updated.TenantID,
		"previous_status", inv.EffectiveStatus(m.now()),
		"expires_at", updated.ExpiresAt,
	)

	outcome := &InviteOutcome{
		Result:     InviteSent,
		TenantID:   updated.TenantID,
		Invitation: updated,
		Token:      token,
		URL:        InvitationURL(m.appOrigin, token),
	}
	m.deliver(ctx, outcome, tenant.Name, true)
	return outcome, nil
}

// Cancel cancels a pending, unexpired invitation. Cancelling a cancelled
// invitation is a no-op.
func (m *Manager) Cancel(ctx context.Context, invitationID uuid.UUID) error {
	inv, err := m.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return storeError(m.logger, "get invitation", err)
	}

	switch inv.EffectiveStatus(m.now()) {
	case domain.InvitationStatusCancelled:
		return nil
	case domain.InvitationStatusAccepted:
		return domain.ErrInvitationNotPending
	case domain.InvitationStatusExpired:
		return domain.ErrInvitationExpired
	}

	if err := m.invitations.UpdateStatus(ctx, inv.ID, domain.InvitationStatusCancelled); err != nil {
		return storeError(m.logger, "cancel invitation", err)
	}

	m.logger.Info("invitation cancelled", "invitation_id", inv.ID, "tenant_id", inv.TenantID)
	return nil
}

// Accept redeems a token: it creates the account, links it to the tenant and
// marks the invitation accepted.
//
// The invitation is checked before anything is created. The steps after that
// are not atomic: when linking fails the account is kept, the outcome carrying
// its ID is returned together with a *domain.LinkError, and the invitation
// stays pending. A failed status update after a successful link is logged and
// flagged on the outcome.
func (m *Manager) Accept(ctx context.Context, token, password string) (*AcceptOutcome, error) {
	if token == "" {
		return nil, domain.ErrInvitationNotFound
	}

	inv, err := m.invitations.FindByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, storeError(m.logger, "find invitation by token", err)
	}

	if inv.Status.IsTerminal() {
		return nil, domain.ErrInvitationNotPending
	}
	if inv.EffectiveStatus(m.now()) == domain.InvitationStatusExpired {
		return nil, domain.ErrInvitationExpired
	}

	pctx, cancel := withTimeout(ctx, m.timeout)
	accountID, err := m.provisioner.CreateAccount(pctx, inv.Email, password, domain.AccountMetadata{TenantClass: true})
	cancel()
	if err != nil {
		return nil, provisionError(m.logger, err)
	}

	m.logger.Info("account created from invitation",
		"invitation_id", inv.ID,
		"tenant_id", inv.TenantID,
		"account_id", accountID,
	)

	outcome := &AcceptOutcome{
		InvitationID: inv.ID,
		TenantID:     inv.TenantID,
		AccountID:    accountID,
		Email:        inv.Email,
	}

	result := m.linker.Link(ctx, inv.TenantID, accountID)
	outcome.Link = result
	if !result.Success {
		m.logger.Warn("account created but link failed, run diagnostics to repair",
			"invitation_id", inv.ID,
			"tenant_id", inv.TenantID,
			"account_id", accountID,
			"error_code", result.ErrorCode,
		)
		return outcome, &domain.LinkError{Result: result}
	}

	if err := m.invitations.UpdateStatus(ctx, inv.ID, domain.InvitationStatusAccepted); err != nil {
		m.logger.Error("failed to mark invitation accepted",
			"error", err,
			"invitation_id", inv.ID,
			"tenant_id", inv.TenantID,
			"account_id", accountID,
		)
		outcome.StatusUpdateFailed = true
	}

	return outcome, nil
}

// List returns invitations newest first with statuses computed at call time.
func (m *Manager) List(ctx context.Context, filter domain.InvitationFilter) ([]*domain.Invitation, error) {
	invitations, err := m.invitations.List(ctx, filter)
	if err != nil {
		return nil, storeError(m.logger, "list invitations", err)
	}
	now := m.now()
	for _, inv := range invitations {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invitations, nil
}

// Preview resolves a token without redeeming it.
func (m *Manager) Preview(ctx context.Context, token string) (*InvitationPreview, error) {
	if token == "" {
		return nil, domain.ErrInvitationNotFound
	}

	inv, err := m.invitations.FindByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, storeError(m.logger, "find invitation by token", err)
	}

	tenant, err := m.tenants.GetByID(ctx, inv.TenantID)
	if err != nil {
		return nil, storeError(m.logger, "get tenant", err)
	}

	now := m.now()
	return &InvitationPreview{
		InvitationID: inv.ID,
		TenantID:     inv.TenantID,
		TenantName:   tenant.Name,
		Email:        inv.Email,
		Status:       inv.EffectiveStatus(now),
		ExpiresAt:    inv.ExpiresAt,
		IsValid:      inv.IsActive(now),
	}, nil
}

func (m *Manager) deliver(ctx context.Context, outcome *InviteOutcome, tenantName string, resend bool) {
	inv := outcome.Invitation
	n := invitationNotification(inv.TenantID, tenantName, inv.Email, outcome.URL, inv.ExpiresAt, resend)

	err := domain.ErrDeliveryUnavailable
	if m.dispatcher != nil {
		dctx, cancel := withTimeout(ctx, m.timeout)
		err = m.dispatcher.Dispatch(dctx, n)
		cancel()
	}

	if err != nil {
		m.logger.Warn("invitation delivery failed, invitation kept",
			"error", err,
			"invitation_id", inv.ID,
			"tenant_id", inv.TenantID,
		)
		outcome.Result = InviteDeliveryFailed
		outcome.DeliveryErr = err
		return
	}

	m.logger.Info("invitation delivered", "invitation_id", inv.ID, "tenant_id", inv.TenantID)
}
