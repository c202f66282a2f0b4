// Package email implements the email alert channel.
package email

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
	"go.uber.org/multierr"

	"trace-rescue/config"
	"trace-rescue/internal/core/models"
)

// ErrNoRecipients is returned by Deliver when no recipients are configured.
var ErrNoRecipients = errors.New("no email recipients configured")

// Sender transmits prepared messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Renderer produces subject and body for an alert.
type Renderer interface {
	EmailSubject() string
	EmailBody(p models.AlertPayload) string
}

// Channel emails every recipient separately, attaching the snapshot if present.
type Channel struct {
	sender     Sender
	renderer   Renderer
	from       string
	recipients []string
}

// NewSMTPSender creates a STARTTLS client with plain auth for the relay.
func NewSMTPSender(cfg config.EmailConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
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
		return nil, fmt.Errorf("failed to create SMTP client for %s: %w", cfg.Host, err)
	}
	return client, nil
}

// NewChannel creates an email channel.
func NewChannel(sender Sender, renderer Renderer, from string, recipients []string) *Channel {
	return &Channel{
		sender:     sender,
		renderer:   renderer,
		from:       from,
		recipients: append([]string(nil), recipients...),
	}
}

func (c *Channel) Name() string { return "email" }

// Deliver tries every recipient and returns the combined failures.
func (c *Channel) Deliver(ctx context.Context, p models.AlertPayload) error {
	if len(c.recipients) == 0 {
		return ErrNoRecipients
	}

	var errs error
	for _, rcpt := range c.recipients {
		logger := log.WithField("recipient", rcpt)
		msg, err := c.buildMessage(rcpt, p)
		if err == nil {
			err = c.sender.DialAndSendWithContext(ctx, msg)
		}
		if err != nil {
			logger.WithError(err).Error("Failed to send alert email")
			errs = multierr.Append(errs, fmt.Errorf("email to %s: %w", rcpt, err))
			continue
		}
		logger.Info("Alert email sent")
	}
	return errs
}

func (c *Channel) buildMessage(rcpt string, p models.AlertPayload) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(c.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(rcpt); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(c.renderer.EmailSubject())
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, c.renderer.EmailBody(p))

	if p.HasSnapshot() {
		if _, err := os.Stat(p.SnapshotPath); err == nil {
			msg.AttachFile(p.SnapshotPath)
		} else {
			log.Debugf("Snapshot %s not attached: %v", p.SnapshotPath, err)
		}
	}
	return msg, nil
}

// Timeout used when none is configured.
const defaultTimeout = 30 * time.Second

// DefaultConfig fills unset transport settings.
func DefaultConfig(cfg config.EmailConfig) config.EmailConfig {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}
