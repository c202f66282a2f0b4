package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/imaging"
)

// ErrCaptureFailure is returned when frames cannot be read after all retries.
var ErrCaptureFailure = errors.New("frame capture failed")

// StopReason explains why Run returned.
type StopReason string

const (
	StopExhausted StopReason = "exhausted"
	StopAlerted   StopReason = "alerted"
	StopRequested StopReason = "stopped"
	StopFailed    StopReason = "failed"
)

// Config tunes the loop.
type Config struct {
	// MatchThreshold is the exclusive upper bound on the distance of a match.
	MatchThreshold float64
	FaceSize       int
	ReadRetries    int
	ReadBackoff    time.Duration
	StopAfterAlert bool
}

// Result summarizes a finished run.
type Result struct {
	Frames    uint64
	Alerts    int
	Reason    StopReason
	LastAlert *models.AlertPayload
}

// Loop drives source, locator and classifier and forwards matches to the
// dispatcher.
type Loop struct {
	cfg        Config
	source     FrameSource
	locator    FaceLocator
	classifier FaceClassifier
	dispatcher Dispatcher
	sink       ReportSink
	annotator  Annotator
}

// Option configures optional collaborators.
type Option func(*Loop)

// WithReportSink forwards sent alerts to sink.
func WithReportSink(sink ReportSink) Option {
	return func(l *Loop) { l.sink = sink }
}

// WithAnnotator renders each processed frame.
func WithAnnotator(a Annotator) Option {
	return func(l *Loop) { l.annotator = a }
}

// NewLoop creates a loop.
func NewLoop(cfg Config, source FrameSource, locator FaceLocator, classifier FaceClassifier, dispatcher Dispatcher, opts ...Option) *Loop {
	if cfg.FaceSize <= 0 {
		cfg.FaceSize = imaging.DefaultFaceSize
	}
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	if cfg.ReadBackoff <= 0 {
		cfg.ReadBackoff = 100 * time.Millisecond
	}
	l := &Loop{
		cfg:        cfg,
		source:     source,
		locator:    locator,
		classifier: classifier,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes frames until the source is exhausted, an alert completes in
// single-shot mode, ctx is cancelled, or reading fails permanently. The
// source is closed before Run returns.
func (l *Loop) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		if cerr := l.source.Close(); cerr != nil {
			log.Warnf("Failed to close video source: %v", cerr)
		}
	}()

	log.WithFields(log.Fields{
		"threshold":        l.cfg.MatchThreshold,
		"stop_after_alert": l.cfg.StopAfterAlert,
	}).Info("Face recognition started")

	for {
		if ctx.Err() != nil {
			res.Reason = StopRequested
			return res, nil
		}

		frame, err := l.readFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Info("Video source exhausted")
			res.Reason = StopExhausted
			return res, nil
		case ctx.Err() != nil:
			res.Reason = StopRequested
			return res, nil
		default:
			res.Reason = StopFailed
			return res, fmt.Errorf("%w: %v", ErrCaptureFailure, err)
		}
		res.Frames++

		payload := l.processFrame(ctx, frame)
		if payload == nil {
			continue
		}

		res.Alerts++
		res.LastAlert = payload
		if l.sink != nil {
			// Die Übergabe läuft auch nach einem Stop zu Ende.
			l.sink.Report(context.WithoutCancel(ctx), *payload)
		}
		if l.cfg.StopAfterAlert {
			log.Info("Stopping recognition after detection")
			res.Reason = StopAlerted
			return res, nil
		}
	}
}

// readFrame reads one frame, retrying transient failures with exponential
// backoff. io.EOF is not retried.
func (l *Loop) readFrame(ctx context.Context) (*models.Frame, error) {
	var frame *models.Frame
	attempt := 0
	op := func() error {
		attempt++
		f, err := l.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		frame = f
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.ReadBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(l.cfg.ReadRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		log.Warnf("Failed to grab frame (attempt %d): %v, retrying in %s", attempt, err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return frame, nil
}

// processFrame classifies every face of frame and dispatches at most one
// alert. It returns the payload when an alert was sent.
func (l *Loop) processFrame(ctx context.Context, frame *models.Frame) *models.AlertPayload {
	regions, err := l.locator.Locate(ctx, frame)
	if err != nil {
		log.WithError(err).Warn("Face detection failed")
	}

	var (
		sent       *models.AlertPayload
		dispatched bool
	)
	annotations := make([]Annotation, 0, len(regions))
	for _, region := range regions {
		result, matched := l.classify(ctx, frame, region)
		annotations = append(annotations, Annotation{Region: region, Result: result, Matched: matched})

		if !matched || dispatched {
			continue
		}
		dispatched = true

		out, err := l.dispatcher.TryAlert(ctx, result.Name, frame)
		if err != nil {
			log.WithError(err).Error("Alert dispatch failed")
			continue
		}
		if out.Sent {
			sent = out.Payload
		} else {
			log.Debugf("In cooldown, next alert in %ds", int(out.Remaining.Seconds()))
		}
	}

	if l.annotator != nil {
		l.annotator.Annotate(frame, annotations, l.dispatcher.Remaining())
	}
	return sent
}

// classify applies the match policy to one region. Errors never propagate;
// the face is reported as unknown instead.
func (l *Loop) classify(ctx context.Context, frame *models.Frame, region models.FaceRegion) (models.ClassificationResult, bool) {
	unknown := models.ClassificationResult{Name: models.UnknownName}

	face, err := imaging.NormalizeFace(frame, region, l.cfg.FaceSize)
	if err != nil {
		log.Warnf("Face processing error: %v", err)
		return unknown, false
	}
	result, err := l.classifier.Classify(ctx, face)
	if err != nil {
		log.Warnf("Face classification error: %v", err)
		return unknown, false
	}

	if result.Confidence < l.cfg.MatchThreshold && result.Name != "" && result.Name != models.UnknownName {
		log.WithFields(log.Fields{
			"person":     result.Name,
			"confidence": fmt.Sprintf("%.1f", result.Confidence),
		}).Info("Face matched")
		return result, true
	}

	result.Name = models.UnknownName
	return result, false
}
