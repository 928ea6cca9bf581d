package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/tenant-invite/internal/config"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// PasswordPolicy is the credential policy applied when an invitee sets a
// password. A zero MaxLength means maxPasswordLength.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

type characterRule struct {
	enabled bool
	class   string
	match   func(rune) bool
}

func (p *PasswordPolicy) characterRules() []characterRule {
	return []characterRule{
		{p.RequireUppercase, "uppercase letter", unicode.IsUpper},
		{p.RequireLowercase, "lowercase letter", unicode.IsLower},
		{p.RequireNumber, "number", unicode.IsDigit},
		{p.RequireSpecial, "special character", isSpecial},
	}
}

func (p *PasswordPolicy) maxLength() int {
	if p.MaxLength > 0 {
		return p.MaxLength
	}
	return maxPasswordLength
}

// ValidatePassword checks a password against the policy. Every failure wraps
// domain.ErrWeakCredential and names the first unmet rule.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if password == "" {
		return weak("password is required")
	}
	if p.MinLength > 0 && len(password) < p.MinLength {
		return weak("password must be at least %d characters long", p.MinLength)
	}
	if max := p.maxLength(); len(password) > max {
		return weak("password must be at most %d characters long", max)
	}
	for _, rule := range p.characterRules() {
		if rule.enabled && !strings.ContainsFunc(password, rule.match) {
			return weak("password must contain at least one %s", rule.class)
		}
	}
	return nil
}

// Requirements describes the policy for the set-password form. It returns
// an empty string when only the length cap applies.
func (p *PasswordPolicy) Requirements() string {
	var parts []string
	if p.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	for _, rule := range p.characterRules() {
		if rule.enabled {
			parts = append(parts, "one "+rule.class)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Use " + strings.Join(parts, ", ") + "."
}

func weak(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrWeakCredential, fmt.Sprintf(format, args...))
}

// isSpecial treats anything that is not a letter, digit or space as special.
func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}
