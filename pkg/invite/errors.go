package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/tenant-invite/pkg/domain"
)

// knownErrors pass through unchanged; anything else is logged and replaced.
var knownErrors = []error{
	domain.ErrInvitationNotFound,
	domain.ErrInvitationExpired,
	domain.ErrInvitationNotPending,
	domain.ErrDuplicateActiveInvitation,
	domain.ErrInvitationEmailMismatch,
	domain.ErrTenantNotFound,
	domain.ErrTenantLinkedToOtherAccount,
	domain.ErrAccountNotFound,
	domain.ErrEmailAlreadyRegistered,
	domain.ErrWeakCredential,
	domain.ErrInvalidEmail,
	domain.ErrLinkFailed,
	domain.ErrDatabaseError,
}

func isKnown(err error) bool {
	for _, target := range knownErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeError converts a storage failure into domain.ErrDatabaseError.
func storeError(logger *slog.Logger, op string, err error) error {
	if isKnown(err) {
		return err
	}
	logger.Error("storage call failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, domain.ErrDatabaseError)
}

// provisionError keeps actionable provisioning failures and collapses
// everything else, timeouts included, into domain.ErrProviderError.
func provisionError(logger *slog.Logger, err error) error {
	if isKnown(err) && !errors.Is(err, domain.ErrDatabaseError) {
		return err
	}
	logger.Error("account provisioning failed", "error", err)
	return fmt.Errorf("create account: %w", domain.ErrProviderError)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
