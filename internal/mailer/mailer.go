// Package mailer consumes account emails from the mail channel and delivers
// them.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/accountd/apiserver/internal/logging"
	"github.com/accountd/apiserver/internal/metrics"
	"github.com/accountd/apiserver/internal/mq"
	"github.com/accountd/apiserver/internal/notify"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, email notify.Email) error
}

// Subscriber is satisfied by *mq.MQ.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Mailer drains the mail channel into a Sender.
type Mailer struct {
	subscriber Subscriber
	channel    string
	sender     Sender
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(subscriber Subscriber, channel string, sender Sender, m *metrics.Metrics, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{
		subscriber: subscriber,
		channel:    channel,
		sender:     sender,
		metrics:    m,
		logger:     logger,
	}
}

// Run consumes the channel until ctx is cancelled.
func (m *Mailer) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "mailer started", "channel", m.channel)
	err := m.subscriber.Subscribe(ctx, m.channel, m.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle delivers one message. Malformed messages are dropped; send
// failures are returned so the broker redelivers.
func (m *Mailer) Handle(ctx context.Context, msg mq.Message) error {
	kind := msg.Attributes[notify.AttrKind]
	logger := m.logger.With("message_id", msg.ID, "kind", kind)

	var email notify.Email
	if err := json.Unmarshal(msg.Data, &email); err != nil {
		logger.WarnContext(ctx, "dropping undecodable email message", "error", err)
		return nil
	}
	if strings.TrimSpace(email.To) == "" || strings.TrimSpace(email.From) == "" {
		logger.WarnContext(ctx, "dropping email message without sender or recipient")
		return nil
	}

	err := m.sender.Send(ctx, email)
	m.metrics.Delivery(kind, err)
	if err != nil {
		err = oops.In("mailer").Code("SEND_FAILED").With("message_id", msg.ID).With("kind", kind).Wrap(err)
		logging.LogError(ctx, logger, "email delivery failed", err)
		return err
	}
	logger.InfoContext(ctx, "email delivered")
	return nil
}
