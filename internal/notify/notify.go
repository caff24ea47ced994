// Package notify turns account events into email messages and publishes them
// on the mail channel. The mailer command consumes that channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/accountd/apiserver/config"
	"github.com/accountd/apiserver/internal/metrics"
)

// Kind identifies an account email.
type Kind string

const (
	KindWelcome   Kind = "welcome"
	KindVerifyOtp Kind = "verify_otp"
	KindResetOtp  Kind = "reset_otp"
)

// AttrKind is the message attribute carrying the email kind.
const AttrKind = "kind"

// Kinds lists every email kind.
func Kinds() []Kind {
	return []Kind{KindWelcome, KindVerifyOtp, KindResetOtp}
}

// Email is the JSON payload published to the mail channel.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Publisher is satisfied by *mq.MQ.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// Dispatcher publishes account emails.
type Dispatcher struct {
	publisher Publisher
	channel   string
	sender    string
	templates *Templates
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewDispatcher(publisher Publisher, cfg config.NotifyConfig, templates *Templates, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		publisher: publisher,
		channel:   cfg.Channel,
		sender:    cfg.SenderEmail,
		templates: templates,
		metrics:   m,
		logger:    logger,
	}
}

// SendWelcome publishes the greeting sent after registration.
func (d *Dispatcher) SendWelcome(ctx context.Context, to, name string) error {
	return d.send(ctx, KindWelcome, to, "Welcome to our website",
		fmt.Sprintf("Welcome to our website. Your account has been created with email id: %s", to),
		TemplateData{Name: name, Email: to})
}

// SendVerifyOtp publishes the email-verification code.
func (d *Dispatcher) SendVerifyOtp(ctx context.Context, to, otp string) error {
	return d.send(ctx, KindVerifyOtp, to, "Account Verification OTP",
		fmt.Sprintf("Your OTP is %s. Verify your account using this OTP.", otp),
		TemplateData{Email: to, OTP: otp})
}

// SendResetOtp publishes the password-reset code.
func (d *Dispatcher) SendResetOtp(ctx context.Context, to, otp string) error {
	return d.send(ctx, KindResetOtp, to, "Password Reset OTP",
		fmt.Sprintf("Your OTP for resetting your password is %s. Use this OTP to proceed with resetting your password.", otp),
		TemplateData{Email: to, OTP: otp})
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, to, subject, text string, data TemplateData) error {
	html, err := d.templates.Render(kind, data)
	if err != nil {
		err = oops.In("notify").Code("TEMPLATE_RENDER_FAILED").With("kind", string(kind)).Wrap(err)
		d.metrics.Notification(string(kind), err)
		return err
	}

	email := Email{From: d.sender, To: to, Subject: subject, Text: text, HTML: html}
	id, err := d.publisher.PublishJSON(ctx, d.channel, email, map[string]string{AttrKind: string(kind)})
	d.metrics.Notification(string(kind), err)
	if err != nil {
		return oops.In("notify").Code("PUBLISH_FAILED").With("kind", string(kind)).With("channel", d.channel).Wrap(err)
	}
	d.logger.DebugContext(ctx, "email published", "kind", string(kind), "message_id", id)
	return nil
}
