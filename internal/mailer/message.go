// Package mailer renders and delivers outbound email: referral requests,
// new-referral notifications and newsletters.
package mailer

import (
	"context"
	"errors"
	"strings"
)

// Kind labels a message for logging and metrics.
type Kind string

const (
	KindReferralRequest      Kind = "referral_request"
	KindReferralNotification Kind = "referral_notification"
	KindNewsletter           Kind = "newsletter"
)

var (
	// ErrNoRecipient is returned for a message without a To address.
	ErrNoRecipient = errors.New("message has no recipient")
	// ErrInvalidHeader is returned when an address or the subject would
	// break out of its header line.
	ErrInvalidHeader = errors.New("invalid header value")
)

// Message is a single email with a plain-text body and an optional HTML
// alternative.
type Message struct {
	Kind    Kind
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

func (m *Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	for _, v := range []string{m.To, m.ReplyTo, m.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return ErrInvalidHeader
		}
	}
	return nil
}

// oneLine collapses whitespace, including line breaks, to single spaces so
// user-supplied names are safe to place in a subject.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
