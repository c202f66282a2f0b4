// Package alert decides whether a recognized person triggers an alert and
// fans the alert out to the configured channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trace-rescue/internal/core/models"
)

// ErrNoPerson is returned when TryAlert is called without a name.
var ErrNoPerson = errors.New("person name is required")

// Channel delivers an alert to one kind of recipient.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, payload models.AlertPayload) error
}

// Waiter is implemented by channels that send in the background.
type Waiter interface {
	Wait()
}

// SnapshotSaver persists the frame an alert was raised for.
type SnapshotSaver interface {
	Save(frame *models.Frame, person string, at time.Time) (string, error)
}

// Outcome reports what TryAlert did.
type Outcome struct {
	Sent      bool
	Remaining time.Duration
	Payload   *models.AlertPayload
}

// Options configures a Dispatcher.
type Options struct {
	Location  string
	Message   string
	Cooldown  time.Duration
	Debug     bool
	Cue       Cue
	Snapshots SnapshotSaver
	Channels  []Channel
	Clock     func() time.Time
}

// Dispatcher owns the cooldown state and the alert channels.
type Dispatcher struct {
	location  string
	message   string
	debug     bool
	cooldown  *Cooldown
	cue       Cue
	snapshots SnapshotSaver
	channels  []Channel
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. A nil Cue plays nothing and a nil
// SnapshotSaver disables snapshots.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		location:  opts.Location,
		message:   opts.Message,
		debug:     opts.Debug,
		cooldown:  NewCooldown(opts.Cooldown),
		cue:       opts.Cue,
		snapshots: opts.Snapshots,
		channels:  opts.Channels,
		now:       opts.Clock,
	}
	if d.cue == nil {
		d.cue = SilentCue{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Remaining is the cooldown left at the current time.
func (d *Dispatcher) Remaining() time.Duration {
	return d.cooldown.Remaining(d.now())
}

// TryAlert raises an alert for person unless the cooldown is active. A
// suppressed call has no side effects. Once the gate passes the alert counts
// as sent regardless of what the channels report.
func (d *Dispatcher) TryAlert(ctx context.Context, person string, frame *models.Frame) (Outcome, error) {
	if person == "" {
		return Outcome{}, ErrNoPerson
	}

	now := d.now()
	ok, remaining := d.cooldown.TryAcquire(now)
	if !ok {
		log.Debugf("Alert for %s suppressed, cooldown %s remaining", person, remaining.Round(time.Second))
		return Outcome{Remaining: remaining}, nil
	}

	logger := log.WithFields(log.Fields{"person": person, "location": d.location})

	if err := d.cue.Play(); err != nil {
		logger.WithError(err).Debug("Alert cue failed")
	}

	payload := models.AlertPayload{
		PersonName: person,
		Location:   d.location,
		Timestamp:  now,
		Message:    d.message,
	}
	if d.snapshots != nil && frame != nil {
		path, err := d.snapshots.Save(frame, person, now)
		if err != nil {
			logger.WithError(err).Warn("Failed to save alert snapshot, continuing without it")
		} else {
			payload.SnapshotPath = path
		}
	}

	if d.debug {
		logger.Info("Debug mode: alert channels not notified")
	} else {
		// Laufende Zustellungen werden bei Stop nicht abgebrochen.
		deliverCtx := context.WithoutCancel(ctx)
		for _, ch := range d.channels {
			d.deliver(deliverCtx, ch, payload)
		}
	}

	logger.Infof("Alert triggered, cooling down for %s", d.cooldown.Window())
	return Outcome{Sent: true, Payload: &payload}, nil
}

// deliver isolates a single channel: errors and panics are logged only.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, payload models.AlertPayload) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Alert channel %s panicked: %v", ch.Name(), r)
		}
	}()
	if err := ch.Deliver(ctx, payload); err != nil {
		log.WithError(err).Errorf("Alert channel %s failed", ch.Name())
		return
	}
	log.Debugf("Alert handed to channel %s", ch.Name())
}

// Drain waits until background sends of all channels have finished or ctx
// is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		if w, ok := ch.(Waiter); ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Wait()
			}()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending alert deliveries abandoned: %w", ctx.Err())
	}
}
