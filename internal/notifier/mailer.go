package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"civicease/civicfeed/internal/config"
)

// ErrMailerDisabled is returned when no SMTP credentials are configured.
var ErrMailerDisabled = errors.New("smtp transport not configured")

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns an SMTP mailer, or a disabled one when cfg has no credentials.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if !cfg.Configured() {
		log.Warn().Str("host", cfg.Host).Msg("SMTP credentials missing, reminder emails are disabled")
		return disabledMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

// SMTPMailer sends mail through an authenticated SMTP server.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// Send dials the server, authenticates and delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm, err := m.build(msg)
	if err != nil {
		return err
	}

	tlsPolicy := mail.NoTLS
	if m.cfg.UseTLS {
		tlsPolicy = mail.TLSMandatory
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.From(m.cfg.Sender()); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", m.cfg.Sender(), err)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mm, nil
}

type disabledMailer struct{}

func (disabledMailer) Send(context.Context, Message) error {
	return ErrMailerDisabled
}
