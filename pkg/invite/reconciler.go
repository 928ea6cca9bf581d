package invite

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// LinkingIssue classifies the tenant link state of an account.
type LinkingIssue string

const (
	IssueNone                 LinkingIssue = "NONE"
	IssueUnlinked             LinkingIssue = "UNLINKED"
	IssueLinkedToOtherAccount LinkingIssue = "LINKED_TO_OTHER_ACCOUNT"
	IssueNoTenantFound        LinkingIssue = "NO_TENANT_FOUND"
	IssueAccountNotFound      LinkingIssue = "ACCOUNT_NOT_FOUND"
)

// DiagnosticInfo is the read-only analysis of one account.
type DiagnosticInfo struct {
	AccountID            uuid.UUID    `json:"account_id"`
	AccountEmail         string       `json:"account_email,omitempty"`
	ProfileExists        bool         `json:"profile_exists"`
	IsTenantClassAccount bool         `json:"is_tenant_class_account"`
	LinkedTenantID       *uuid.UUID   `json:"linked_tenant_id,omitempty"`
	TenantExistsByEmail  bool         `json:"tenant_exists_by_email"`
	CandidateTenantID    *uuid.UUID   `json:"candidate_tenant_id,omitempty"`
	LinkingIssue         LinkingIssue `json:"linking_issue"`
}

// Reconciler detects and repairs broken tenant links.
type Reconciler struct {
	accounts AccountStore
	tenants  TenantStore
	linker   *Linker
	logger   *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(accounts AccountStore, tenants TenantStore, linker *Linker, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{accounts: accounts, tenants: tenants, linker: linker, logger: logger}
}

// RunDiagnostic inspects the account and the tenants sharing its email.
// It never writes.
func (r *Reconciler) RunDiagnostic(ctx context.Context, accountID uuid.UUID) (*DiagnosticInfo, error) {
	info := &DiagnosticInfo{AccountID: accountID}

	account, err := r.accounts.GetByID(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		info.LinkingIssue = IssueAccountNotFound
		return info, nil
	}
	if err != nil {
		return nil, storeError(r.logger, "get account", err)
	}
	info.ProfileExists = true
	info.AccountEmail = account.Email
	info.IsTenantClassAccount = account.Metadata.TenantClass

	linked, err := r.tenants.GetByIdentityID(ctx, accountID)
	switch {
	case err == nil:
		id := linked.ID
		info.LinkedTenantID = &id
	case !errors.Is(err, domain.ErrTenantNotFound):
		return nil, storeError(r.logger, "get tenant by identity", err)
	}

	byEmail, err := r.tenants.ListByEmail(ctx, account.Email)
	if err != nil {
		return nil, storeError(r.logger, "list tenants by email", err)
	}
	info.TenantExistsByEmail = len(byEmail) > 0

	switch {
	case info.LinkedTenantID != nil:
		info.LinkingIssue = IssueNone
	case firstUnlinked(byEmail) != nil:
		id := firstUnlinked(byEmail).ID
		info.CandidateTenantID = &id
		info.LinkingIssue = IssueUnlinked
	case len(byEmail) > 0:
		id := byEmail[0].ID
		info.CandidateTenantID = &id
		info.LinkingIssue = IssueLinkedToOtherAccount
	case info.IsTenantClassAccount:
		info.LinkingIssue = IssueNoTenantFound
	default:
		// not a tenant account, nothing to link
		info.LinkingIssue = IssueNone
	}

	return info, nil
}

// AttemptManualLink links the account to the unlinked tenant that shares its
// email. A tenant already linked to another account is never overwritten.
func (r *Reconciler) AttemptManualLink(ctx context.Context, accountID uuid.UUID) (*domain.LinkResult, error) {
	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, storeError(r.logger, "get account", err)
	}

	var target *domain.Tenant
	linked, err := r.tenants.GetByIdentityID(ctx, accountID)
	switch {
	case err == nil:
		// re-running the procedure reports ALREADY_LINKED
		target = linked
	case !errors.Is(err, domain.ErrTenantNotFound):
		return nil, storeError(r.logger, "get tenant by identity", err)
	default:
		byEmail, err := r.tenants.ListByEmail(ctx, account.Email)
		if err != nil {
			return nil, storeError(r.logger, "list tenants by email", err)
		}
		target = firstUnlinked(byEmail)
		if target == nil {
			if len(byEmail) > 0 {
				r.logger.Warn("manual link refused, tenant linked to another account",
					"account_id", accountID,
					"tenant_id", byEmail[0].ID,
				)
				return nil, domain.ErrTenantLinkedToOtherAccount
			}
			return nil, domain.ErrTenantNotFound
		}
	}

	r.logger.Info("attempting manual link", "account_id", accountID, "tenant_id", target.ID)

	result := r.linker.Link(ctx, target.ID, accountID)
	if !result.Success {
		return nil, &domain.LinkError{Result: result}
	}
	return result, nil
}

func firstUnlinked(tenants []*domain.Tenant) *domain.Tenant {
	for _, t := range tenants {
		if !t.IsLinked() {
			return t
		}
	}
	return nil
}
