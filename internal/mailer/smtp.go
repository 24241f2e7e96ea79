package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds outbound mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// MaxElapsed bounds the total retry time for one message.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// SMTPSender delivers mail through an SMTP relay, upgrading to STARTTLS
// whenever the server offers it.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, m *mail.Msg) error
	logger  *log.Logger
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = time.Minute
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPSender{
		cfg: cfg,
		deliver: func(ctx context.Context, m *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, m)
		},
		logger: log.New(log.Writer(), "[SMTP] ", log.LstdFlags),
	}, nil
}

// Send delivers msg, retrying transient failures with exponential backoff.
// Permanent (5xx) server replies are not retried.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m, err := buildMsg(s.cfg.From, msg)
	if err != nil {
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := s.deliver(ctx, m)
		if err == nil {
			return nil
		}
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return backoff.Permanent(err)
		}
		s.logger.Printf("⚠️  Attempt %d to %s failed: %v", attempt, msg.To, err)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = s.cfg.MaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// buildMsg renders msg as multipart/alternative. Addresses are parsed, so a
// malformed From, To or Reply-To is an error rather than a raw header.
func buildMsg(from string, msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidHeader, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidHeader, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: reply-to: %v", ErrInvalidHeader, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
