package detection

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"trace-rescue/internal/alert"
	"trace-rescue/internal/core/models"
)

func newFrame(seq uint64) *models.Frame {
	return &models.Frame{Seq: seq, Width: 40, Height: 40, Channels: 3, Data: make([]byte, 40*40*3)}
}

// scriptedSource returns the scripted frames or errors in order, then io.EOF.
type scriptedSource struct {
	steps  []step
	reads  int
	closed bool
}

type step struct {
	frame *models.Frame
	err   error
}

func framesSource(n int) *scriptedSource {
	s := &scriptedSource{}
	for i := 1; i <= n; i++ {
		s.steps = append(s.steps, step{frame: newFrame(uint64(i))})
	}
	return s
}

func (s *scriptedSource) Read(context.Context) (*models.Frame, error) {
	s.reads++
	if s.reads > len(s.steps) {
		return nil, io.EOF
	}
	st := s.steps[s.reads-1]
	return st.frame, st.err
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

// regionLocator returns the configured regions for a frame sequence number.
type regionLocator map[uint64][]models.FaceRegion

func (l regionLocator) Locate(_ context.Context, f *models.Frame) ([]models.FaceRegion, error) {
	return l[f.Seq], nil
}

func oneFace() []models.FaceRegion {
	return []models.FaceRegion{{X: 5, Y: 5, Width: 20, Height: 20}}
}

type queueClassifier struct {
	results []classifyStep
	calls   int
}

type classifyStep struct {
	res models.ClassificationResult
	err error
}

func (c *queueClassifier) Classify(context.Context, *image.Gray) (models.ClassificationResult, error) {
	c.calls++
	if c.calls > len(c.results) {
		return models.ClassificationResult{Label: "0", Name: "alice", Confidence: 10}, nil
	}
	st := c.results[c.calls-1]
	return st.res, st.err
}

func match(name string, conf float64) classifyStep {
	return classifyStep{res: models.ClassificationResult{Label: "1", Name: name, Confidence: conf}}
}

type countingSnapshots struct{ saved int }

func (s *countingSnapshots) Save(*models.Frame, string, time.Time) (string, error) {
	s.saved++
	return "/tmp/snap.jpg", nil
}

type recordingSink struct {
	mu       sync.Mutex
	payloads []models.AlertPayload
}

func (s *recordingSink) Report(_ context.Context, p models.AlertPayload) {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
}

type recordingAnnotator struct {
	frames    int
	lastFaces []Annotation
	cooldowns []time.Duration
}

func (a *recordingAnnotator) Annotate(_ *models.Frame, faces []Annotation, cd time.Duration) {
	a.frames++
	a.lastFaces = faces
	a.cooldowns = append(a.cooldowns, cd)
}

type recordingChannel struct{ deliveries int }

func (c *recordingChannel) Name() string { return "fake" }

func (c *recordingChannel) Deliver(context.Context, models.AlertPayload) error {
	c.deliveries++
	return nil
}

func fixedClock() func() time.Time {
	now := time.Unix(1_700_000_000, 0)
	return func() time.Time { return now }
}

func baseConfig() Config {
	return Config{MatchThreshold: 70, FaceSize: 50, ReadRetries: 2, ReadBackoff: time.Millisecond, StopAfterAlert: true}
}

func TestRunThreeFrameScenario(t *testing.T) {
	source := framesSource(3)
	locator := regionLocator{2: oneFace(), 3: oneFace()}
	classifier := &queueClassifier{results: []classifyStep{match("alice", 42.5)}}
	snaps := &countingSnapshots{}
	ch := &recordingChannel{}
	sink := &recordingSink{}
	d := alert.NewDispatcher(alert.Options{
		Location:  "Gate 1",
		Cooldown:  45 * time.Second,
		Snapshots: snaps,
		Channels:  []alert.Channel{ch},
		Clock:     fixedClock(),
	})

	loop := NewLoop(baseConfig(), source, locator, classifier, d, WithReportSink(sink))
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Reason != StopAlerted || res.Alerts != 1 || res.Frames != 2 {
		t.Fatalf("result = %+v", res)
	}
	if source.reads != 2 {
		t.Fatalf("source read %d times, frame 3 must never be read", source.reads)
	}
	if !source.closed {
		t.Fatal("source not closed")
	}
	if snaps.saved != 1 || ch.deliveries != 1 {
		t.Fatalf("snapshots=%d deliveries=%d, want 1 each", snaps.saved, ch.deliveries)
	}
	if len(sink.payloads) != 1 || sink.payloads[0].PersonName != "alice" || sink.payloads[0].Location != "Gate 1" {
		t.Fatalf("sink payloads = %+v", sink.payloads)
	}
}

// cancellingChannel stops the run while the alert is being delivered.
type cancellingChannel struct{ cancel context.CancelFunc }

func (c *cancellingChannel) Name() string { return "cancelling" }

func (c *cancellingChannel) Deliver(context.Context, models.AlertPayload) error {
	c.cancel()
	return nil
}

type ctxSink struct{ errs []error }

func (s *ctxSink) Report(ctx context.Context, _ models.AlertPayload) {
	s.errs = append(s.errs, ctx.Err())
}

func TestReportHandoffSurvivesStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &ctxSink{}
	d := alert.NewDispatcher(alert.Options{
		Cooldown: time.Minute,
		Channels: []alert.Channel{&cancellingChannel{cancel: cancel}},
		Clock:    fixedClock(),
	})
	classifier := &queueClassifier{results: []classifyStep{match("alice", 10)}}
	loop := NewLoop(baseConfig(), framesSource(1), regionLocator{1: oneFace()}, classifier, d, WithReportSink(sink))

	res, err := loop.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Alerts != 1 || len(sink.errs) != 1 {
		t.Fatalf("alerts = %d, reports = %d, want 1 each", res.Alerts, len(sink.errs))
	}
	if sink.errs[0] != nil {
		t.Errorf("report context already done: %v", sink.errs[0])
	}
}

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		conf      float64
		wantAlert bool
	}{
		{"below", 69.99, true},
		{"equal", 70, false},
		{"above", 70.01, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &recordingChannel{}
			d := alert.NewDispatcher(alert.Options{Cooldown: time.Minute, Channels: []alert.Channel{ch}, Clock: fixedClock()})
			classifier := &queueClassifier{results: []classifyStep{match("alice", tt.conf)}}
			annot := &recordingAnnotator{}

			loop := NewLoop(baseConfig(), framesSource(1), regionLocator{1: oneFace()}, classifier, d, WithAnnotator(annot))
			res, err := loop.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Alerts == 1; got != tt.wantAlert {
				t.Fatalf("alerted = %v, want %v", got, tt.wantAlert)
			}
			if !tt.wantAlert {
				if annot.lastFaces[0].Result.Name != models.UnknownName {
					t.Errorf("non-matching face labelled %q", annot.lastFaces[0].Result.Name)
				}
			}
		})
	}
}

func TestSingleDispatchPerFrame(t *testing.T) {
	ch := &recordingChannel{}
	d := alert.NewDispatcher(alert.Options{Cooldown: 0, Channels: []alert.Channel{ch}, Clock: fixedClock()})
	regions := []models.FaceRegion{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 20, Y: 20, Width: 10, Height: 10},
	}
	classifier := &queueClassifier{results: []classifyStep{match("alice", 10), match("bob", 5)}}
	sink := &recordingSink{}

	loop := NewLoop(baseConfig(), framesSource(1), regionLocator{1: regions}, classifier, d, WithReportSink(sink))
	res, _ := loop.Run(context.Background())

	if res.Alerts != 1 || ch.deliveries != 1 {
		t.Fatalf("alerts=%d deliveries=%d, want 1", res.Alerts, ch.deliveries)
	}
	if sink.payloads[0].PersonName != "alice" {
		t.Fatalf("first qualifying face should win, got %q", sink.payloads[0].PersonName)
	}
	if classifier.calls != 2 {
		t.Fatalf("all faces should still be classified, calls = %d", classifier.calls)
	}
}

func TestClassifierErrorDoesNotAbortFrame(t *testing.T) {
	d := alert.NewDispatcher(alert.Options{Cooldown: time.Minute, Clock: fixedClock()})
	regions := []models.FaceRegion{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 20, Y: 20, Width: 10, Height: 10},
	}
	classifier := &queueClassifier{results: []classifyStep{
		{err: errors.New("predict failed")},
		match("carol", 30),
	}}

	loop := NewLoop(baseConfig(), framesSource(1), regionLocator{1: regions}, classifier, d)
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Alerts != 1 || res.LastAlert.PersonName != "carol" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCooldownSuppressionContinues(t *testing.T) {
	ch := &recordingChannel{}
	d := alert.NewDispatcher(alert.Options{Cooldown: 45 * time.Second, Channels: []alert.Channel{ch}, Clock: fixedClock()})
	locator := regionLocator{1: oneFace(), 2: oneFace(), 3: oneFace()}
	annot := &recordingAnnotator{}
	sink := &recordingSink{}

	cfg := baseConfig()
	cfg.StopAfterAlert = false
	loop := NewLoop(cfg, framesSource(3), locator, &queueClassifier{}, d, WithAnnotator(annot), WithReportSink(sink))
	res, err := loop.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if res.Reason != StopExhausted || res.Frames != 3 {
		t.Fatalf("result = %+v", res)
	}
	if res.Alerts != 1 || ch.deliveries != 1 || len(sink.payloads) != 1 {
		t.Fatalf("alerts=%d deliveries=%d reports=%d, want 1", res.Alerts, ch.deliveries, len(sink.payloads))
	}
	if annot.frames != 3 {
		t.Fatalf("annotated %d frames", annot.frames)
	}
	for i, cd := range annot.cooldowns {
		if cd != 45*time.Second {
			t.Errorf("frame %d cooldown = %s, want 45s", i+1, cd)
		}
	}
}

func TestReadRetries(t *testing.T) {
	transient := errors.New("rtsp hiccup")
	source := &scriptedSource{steps: []step{{err: transient}, {err: transient}, {frame: newFrame(1)}}}
	d := alert.NewDispatcher(alert.Options{Clock: fixedClock()})

	res, err := NewLoop(baseConfig(), source, regionLocator{}, &queueClassifier{}, d).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Frames != 1 || res.Reason != StopExhausted {
		t.Fatalf("result = %+v", res)
	}
}

func TestReadFailureAfterRetries(t *testing.T) {
	transient := errors.New("camera unplugged")
	source := &scriptedSource{}
	for i := 0; i < 5; i++ {
		source.steps = append(source.steps, step{err: transient})
	}
	d := alert.NewDispatcher(alert.Options{Clock: fixedClock()})

	res, err := NewLoop(baseConfig(), source, regionLocator{}, &queueClassifier{}, d).Run(context.Background())
	if !errors.Is(err, ErrCaptureFailure) {
		t.Fatalf("error = %v, want ErrCaptureFailure", err)
	}
	if source.reads != 3 {
		t.Fatalf("reads = %d, want 1 attempt + 2 retries", source.reads)
	}
	if res.Reason != StopFailed || !source.closed {
		t.Fatalf("result = %+v closed=%v", res, source.closed)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	source := framesSource(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := alert.NewDispatcher(alert.Options{Clock: fixedClock()})
	res, err := NewLoop(baseConfig(), source, regionLocator{}, &queueClassifier{}, d).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopRequested || source.reads != 0 {
		t.Fatalf("result = %+v reads = %d", res, source.reads)
	}
}

func TestPrepareDoesNotOpenSourceOnBadModel(t *testing.T) {
	opened := false
	_, _, err := Prepare(context.Background(),
		func() (FaceClassifier, error) { return nil, errors.New("model file not found") },
		func(context.Context) (FrameSource, error) {
			opened = true
			return framesSource(1), nil
		},
	)
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("error = %v, want ErrStartup", err)
	}
	if opened {
		t.Fatal("video source must not be opened when the model fails to load")
	}
}

func TestPrepareSourceFailure(t *testing.T) {
	_, _, err := Prepare(context.Background(),
		func() (FaceClassifier, error) { return &queueClassifier{}, nil },
		func(context.Context) (FrameSource, error) { return nil, errors.New("cannot open rtsp") },
	)
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("error = %v, want ErrStartup", err)
	}
}
