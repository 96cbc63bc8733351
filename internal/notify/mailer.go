package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/lzhou1110/boardwatch/internal/posting"
)

// SMTPConfig carries the shared mail-transport settings.
type SMTPConfig struct {
	Server   string
	Port     int
	Sender   string
	Password string
	Receiver string
}

// Mailer sends digest emails over SMTP. Port 465 uses implicit TLS, anything
// else negotiates STARTTLS.
type Mailer struct {
	client   *mail.Client
	sender   string
	receiver string
	logger   *slog.Logger
}

func NewMailer(cfg SMTPConfig, logger *slog.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Sender),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{
		client:   client,
		sender:   cfg.Sender,
		receiver: cfg.Receiver,
		logger:   logger,
	}, nil
}

func (m *Mailer) Notify(ctx context.Context, subject string, postings []posting.Posting, keywords []string) error {
	if len(postings) == 0 {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.sender); err != nil {
		return fmt.Errorf("mail sender %q: %w", m.sender, err)
	}
	if err := msg.To(m.receiver); err != nil {
		return fmt.Errorf("mail receiver %q: %w", m.receiver, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, BuildBody(postings, keywords))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	m.logger.Info("digest sent", "to", m.receiver, "postings", len(postings))
	return nil
}
