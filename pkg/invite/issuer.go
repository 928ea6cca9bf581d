package invite

import (
	"time"

	"github.com/tendant/tenant-invite/pkg/auth"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// TokenBytes is the entropy of an invitation token (256 bits).
const TokenBytes = 32

// TokenIssuer generates invitation tokens and their expiry.
type TokenIssuer struct {
	ttl      time.Duration
	now      func() time.Time
	generate func(n int) (string, error)
}

// NewTokenIssuer creates an issuer. A zero ttl means domain.InvitationTTL,
// a nil clock means time.Now.
func NewTokenIssuer(ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = domain.InvitationTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{ttl: ttl, now: now, generate: auth.GenerateToken}
}

// TTL returns the lifetime applied to issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a fresh token and the instant it stops being valid.
func (i *TokenIssuer) Issue() (string, time.Time, error) {
	token, err := i.generate(TokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, i.now().Add(i.ttl), nil
}
