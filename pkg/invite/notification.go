package invite

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/auth"
)

// CategoryTenantInvitation tags invitation mail for the dispatcher.
const CategoryTenantInvitation = "tenant_invitation"

// Notification is a rendered message handed to a Dispatcher.
type Notification struct {
	TenantID   uuid.UUID
	Recipients []string
	Subject    string
	HTMLBody   string
	Category   string
}

// Dispatcher delivers notifications. Failures are reported, never retried here.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// InvitationURL builds {origin}/invite/{token}.
func InvitationURL(origin, token string) string {
	return strings.TrimRight(origin, "/") + "/invite/" + url.PathEscape(token)
}

func invitationNotification(tenantID uuid.UUID, tenantName, email, inviteURL string, expiresAt time.Time, resend bool) Notification {
	name := auth.SanitizeName(tenantName)
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s,", name)
	}

	subject := "You're invited to the tenant portal"
	intro := "Your landlord has invited you to create an account on the tenant portal."
	if resend {
		subject = "Your tenant portal invitation"
		intro = "Here is a new link to create your tenant portal account. Earlier links no longer work."
	}

	body := fmt.Sprintf(`<html><body>
		<p>%s</p>
		<p>%s</p>
		<p><a href="%s">Click here to accept your invitation</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire on %s.</p>
	</body></html>`, greeting, intro, inviteURL, inviteURL, expiresAt.UTC().Format("January 2, 2006 15:04 MST"))

	return Notification{
		TenantID:   tenantID,
		Recipients: []string{email},
		Subject:    subject,
		HTMLBody:   body,
		Category:   CategoryTenantInvitation,
	}
}
