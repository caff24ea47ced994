package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/notify"
)

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
}

// NewSMTPSender builds an SMTP client from config. Authentication is only
// enabled when a username is set.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if strings.TrimSpace(cfg.Username) != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client}, nil
}

// Send dials the relay and sends email. HTML bodies carry the plain text as
// an alternative part.
func (s *SMTPSender) Send(ctx context.Context, email notify.Email) error {
	msg, err := buildMessage(email)
	if err != nil {
		return err
	}
	return s.client.DialAndSendWithContext(ctx, msg)
}

func buildMessage(email notify.Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(email.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", email.From, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)

	switch {
	case email.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, email.HTML)
		if email.Text != "" {
			msg.AddAlternativeString(mail.TypeTextPlain, email.Text)
		}
	default:
		msg.SetBodyString(mail.TypeTextPlain, email.Text)
	}
	return msg, nil
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// LogSender writes emails to the log instead of sending them. Bodies carry
// one-time codes and are only logged when includeBody is set.
type LogSender struct {
	logger      *slog.Logger
	includeBody bool
}

func NewLogSender(logger *slog.Logger, includeBody bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, includeBody: includeBody}
}

func (s *LogSender) Send(ctx context.Context, email notify.Email) error {
	attrs := []any{"from", email.From, "to", email.To, "subject", email.Subject}
	if s.includeBody {
		attrs = append(attrs, "text", email.Text)
	}
	s.logger.InfoContext(ctx, "email", attrs...)
	return nil
}
