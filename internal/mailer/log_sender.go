package mailer

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. Used in
// development when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	slog.Info("Email (not sent)",
		"kind", msg.Kind,
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
