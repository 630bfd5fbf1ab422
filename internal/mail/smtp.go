package mail

import (
	"context"
	"fmt"

	"github.com/payplan-sync/internal/config"
	gomail "github.com/wneessen/go-mail"
)

// SMTPMailer delivers messages over SMTP
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer creates an SMTP mailer from mail configuration
func NewSMTPMailer(cfg *config.MailConfig) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(cfg.SendTimeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUser),
			gomail.WithPassword(cfg.SMTPPass),
		)
	}

	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send delivers the message and returns its Message-ID header
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) (string, error) {
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return "", fmt.Errorf("invalid sender address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}

	out.Subject(msg.Subject)
	out.SetMessageID()
	out.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		out.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return out.GetMessageID(), nil
}
