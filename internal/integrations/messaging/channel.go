// Package messaging implements the instant-message alert channel.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trace-rescue/internal/core/models"
)

// ErrNoRecipients is returned by Deliver when no recipients are configured.
var ErrNoRecipients = errors.New("no instant message recipients configured")

// Message is one outgoing instant message.
type Message struct {
	Recipient string
	Text      string
	Alert     models.AlertPayload
}

// Transport sends a single message to a single recipient.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Renderer produces the message text for an alert.
type Renderer interface {
	InstantMessage(p models.AlertPayload) string
}

// Channel sends the alert text to every recipient in the background. One
// recipient failing never affects another.
type Channel struct {
	transport  Transport
	renderer   Renderer
	recipients []string
	delay      time.Duration

	wg sync.WaitGroup
}

// NewChannel creates an instant-message channel. delay is waited before each
// send, mirroring transports that need time before they can dispatch.
func NewChannel(transport Transport, renderer Renderer, recipients []string, delay time.Duration) *Channel {
	return &Channel{
		transport:  transport,
		renderer:   renderer,
		recipients: append([]string(nil), recipients...),
		delay:      delay,
	}
}

func (c *Channel) Name() string { return "instant-message/" + c.transport.Name() }

// Deliver starts one send per recipient and returns without waiting for them.
// Sends keep running if ctx is cancelled afterwards.
func (c *Channel) Deliver(ctx context.Context, p models.AlertPayload) error {
	if len(c.recipients) == 0 {
		return ErrNoRecipients
	}
	text := c.renderer.InstantMessage(p)
	sendCtx := context.WithoutCancel(ctx)

	for _, r := range c.recipients {
		c.wg.Add(1)
		go c.send(sendCtx, Message{Recipient: r, Text: text, Alert: p})
	}
	return nil
}

func (c *Channel) send(ctx context.Context, msg Message) {
	defer c.wg.Done()
	logger := log.WithFields(log.Fields{"recipient": msg.Recipient, "transport": c.transport.Name()})
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Instant message send panicked: %v", r)
		}
	}()

	if c.delay > 0 {
		logger.Debugf("Waiting %s before sending", c.delay)
		time.Sleep(c.delay)
	}
	if err := c.transport.Send(ctx, msg); err != nil {
		logger.WithError(err).Error("Instant message failed")
		return
	}
	logger.Info("Instant message sent")
}

// Wait blocks until all started sends have finished.
func (c *Channel) Wait() {
	c.wg.Wait()
}
