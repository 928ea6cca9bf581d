package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/tendant/tenant-invite/internal/config"
	"github.com/tendant/tenant-invite/pkg/auth"
	"github.com/tendant/tenant-invite/pkg/invite"
)

var errNoRecipients = errors.New("notification has no recipients")

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// EmailConfigFromSMTP converts the SMTP section of the service configuration.
func EmailConfigFromSMTP(c config.SMTPConfig) EmailConfig {
	return EmailConfig{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		From:     c.From,
		FromName: c.FromName,
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService delivers invitation notifications over SMTP.
type EmailService struct {
	config EmailConfig
	send   sendFunc
}

func NewEmailService(config EmailConfig) *EmailService {
	return &EmailService{config: config, send: smtp.SendMail}
}

// Dispatch implements invite.Dispatcher. net/smtp has no context support, so
// the send runs in a goroutine and Dispatch returns when ctx is done; the
// message may still go out afterwards.
func (s *EmailService) Dispatch(ctx context.Context, n invite.Notification) error {
	if len(n.Recipients) == 0 {
		return errNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sendEmail(n.Recipients, n.Subject, n.HTMLBody)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s email: %w", n.Category, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EmailService) sendEmail(to []string, subject, body string) error {
	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = auth.SanitizeHeader(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return errNoRecipients
	}

	msg := s.buildMessage(recipients, subject, body)

	var a smtp.Auth
	if s.config.User != "" {
		a = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return s.send(addr, a, s.config.From, recipients, msg)
}

func (s *EmailService) buildMessage(to []string, subject, body string) []byte {
	from := s.config.From
	if name := auth.SanitizeHeader(s.config.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, strings.Join(to, ", "), auth.SanitizeHeader(subject), body)
	return []byte(msg)
}
