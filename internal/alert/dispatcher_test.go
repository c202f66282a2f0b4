package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trace-rescue/internal/core/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingChannel struct {
	name     string
	err      error
	panicMsg string

	mu       sync.Mutex
	payloads []models.AlertPayload
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, p models.AlertPayload) error {
	c.mu.Lock()
	c.payloads = append(c.payloads, p)
	c.mu.Unlock()
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

type fakeSnapshots struct {
	calls int
	err   error
}

func (s *fakeSnapshots) Save(_ *models.Frame, person string, _ time.Time) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "/tmp/" + person + ".jpg", nil
}

type countingCue struct{ plays int }

func (c *countingCue) Play() error { c.plays++; return nil }

func testFrame() *models.Frame {
	return &models.Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 12)}
}

func TestTryAlertSendsAndSuppresses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10_000, 0)}
	ch := &recordingChannel{name: "im"}
	snaps := &fakeSnapshots{}
	cue := &countingCue{}
	d := NewDispatcher(Options{
		Location:  "Gate 3",
		Message:   "Missing person detected!",
		Cooldown:  45 * time.Second,
		Cue:       cue,
		Snapshots: snaps,
		Channels:  []Channel{ch},
		Clock:     clock.Now,
	})

	out, err := d.TryAlert(context.Background(), "alice", testFrame())
	if err != nil || !out.Sent {
		t.Fatalf("first TryAlert() = %+v, %v", out, err)
	}
	if out.Payload.PersonName != "alice" || out.Payload.Location != "Gate 3" || out.Payload.SnapshotPath == "" {
		t.Fatalf("unexpected payload %+v", out.Payload)
	}

	clock.Advance(20 * time.Second)
	out, err = d.TryAlert(context.Background(), "alice", testFrame())
	if err != nil || out.Sent {
		t.Fatalf("second TryAlert() = %+v, %v; want suppressed", out, err)
	}
	if out.Remaining != 25*time.Second {
		t.Fatalf("Remaining = %s, want 25s", out.Remaining)
	}
	if out.Payload != nil {
		t.Fatal("suppressed outcome must not carry a payload")
	}

	if ch.count() != 1 || snaps.calls != 1 || cue.plays != 1 {
		t.Fatalf("side effects after suppression: deliveries=%d snapshots=%d cues=%d", ch.count(), snaps.calls, cue.plays)
	}

	clock.Advance(25 * time.Second)
	if out, _ := d.TryAlert(context.Background(), "bob", testFrame()); !out.Sent {
		t.Fatal("alert should pass once the cooldown elapsed")
	}
}

func TestTryAlertChannelIsolation(t *testing.T) {
	failing := &recordingChannel{name: "failing", err: errors.New("smtp down")}
	panicking := &recordingChannel{name: "panicking", panicMsg: "boom"}
	healthy := &recordingChannel{name: "healthy"}
	d := NewDispatcher(Options{
		Cooldown: time.Minute,
		Channels: []Channel{failing, panicking, healthy},
	})

	out, err := d.TryAlert(context.Background(), "carol", testFrame())
	if err != nil || !out.Sent {
		t.Fatalf("TryAlert() = %+v, %v", out, err)
	}
	for _, ch := range []*recordingChannel{failing, panicking, healthy} {
		if ch.count() != 1 {
			t.Errorf("channel %s got %d deliveries, want 1", ch.name, ch.count())
		}
	}
}

// slowChannel delivers to each recipient in turn and gives up as soon as
// ctx is done, like an SMTP client would.
type slowChannel struct {
	recipients int
	perSend    time.Duration

	mu        sync.Mutex
	delivered int
	aborted   int
}

func (c *slowChannel) Name() string { return "slow" }

func (c *slowChannel) Deliver(ctx context.Context, _ models.AlertPayload) error {
	for i := 0; i < c.recipients; i++ {
		select {
		case <-time.After(c.perSend):
			c.mu.Lock()
			c.delivered++
			c.mu.Unlock()
		case <-ctx.Done():
			c.mu.Lock()
			c.aborted++
			c.mu.Unlock()
		}
	}
	return nil
}

func TestTryAlertDeliveryOutlivesCancel(t *testing.T) {
	ch := &slowChannel{recipients: 2, perSend: 50 * time.Millisecond}
	d := NewDispatcher(Options{Cooldown: time.Minute, Channels: []Channel{ch}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(10*time.Millisecond, cancel)

	out, err := d.TryAlert(ctx, "dave", testFrame())
	if err != nil || !out.Sent {
		t.Fatalf("TryAlert() = %+v, %v", out, err)
	}
	if ctx.Err() == nil {
		t.Fatal("context should have been cancelled during delivery")
	}
	if ch.delivered != 2 || ch.aborted != 0 {
		t.Errorf("delivered = %d, aborted = %d, want 2 and 0", ch.delivered, ch.aborted)
	}
}

func TestTryAlertDebugSkipsChannels(t *testing.T) {
	ch := &recordingChannel{name: "im"}
	snaps := &fakeSnapshots{}
	d := NewDispatcher(Options{
		Cooldown:  time.Minute,
		Debug:     true,
		Snapshots: snaps,
		Channels:  []Channel{ch},
	})

	out, _ := d.TryAlert(context.Background(), "dave", testFrame())
	if !out.Sent {
		t.Fatal("debug mode still counts as sent")
	}
	if ch.count() != 0 {
		t.Fatal("debug mode must not deliver")
	}
	if snaps.calls != 1 {
		t.Fatal("debug mode still writes the snapshot")
	}
	if d.Remaining() <= 0 {
		t.Fatal("debug mode still starts the cooldown")
	}
}

func TestTryAlertSnapshotFailure(t *testing.T) {
	ch := &recordingChannel{name: "email"}
	d := NewDispatcher(Options{
		Cooldown:  time.Minute,
		Snapshots: &fakeSnapshots{err: errors.New("disk full")},
		Channels:  []Channel{ch},
	})

	out, _ := d.TryAlert(context.Background(), "erin", testFrame())
	if !out.Sent || out.Payload.HasSnapshot() {
		t.Fatalf("outcome = %+v, want sent without snapshot", out)
	}
	if ch.count() != 1 {
		t.Fatal("channel should still be notified")
	}
}

func TestTryAlertRequiresName(t *testing.T) {
	d := NewDispatcher(Options{})
	if _, err := d.TryAlert(context.Background(), "", nil); !errors.Is(err, ErrNoPerson) {
		t.Fatalf("error = %v, want ErrNoPerson", err)
	}
}

type blockingChannel struct {
	recordingChannel
	release chan struct{}
}

func (b *blockingChannel) Wait() { <-b.release }

func TestDrain(t *testing.T) {
	ch := &blockingChannel{recordingChannel: recordingChannel{name: "im"}, release: make(chan struct{})}
	d := NewDispatcher(Options{Channels: []Channel{ch}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() = %v, want deadline exceeded", err)
	}

	close(ch.release)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() = %v", err)
	}
}
