// Package detection runs the per-frame face recognition loop and decides
// when a recognized face becomes an alert.
package detection

import (
	"context"
	"image"
	"time"

	"trace-rescue/internal/alert"
	"trace-rescue/internal/core/models"
)

// FrameSource yields frames from a camera or stream. Read returns io.EOF once
// the source is exhausted.
type FrameSource interface {
	Read(ctx context.Context) (*models.Frame, error)
	Close() error
}

// FaceLocator finds faces in a frame.
type FaceLocator interface {
	Locate(ctx context.Context, frame *models.Frame) ([]models.FaceRegion, error)
}

// FaceClassifier identifies a normalized grayscale face. Confidence in the
// result is a distance: lower means a closer match.
type FaceClassifier interface {
	Classify(ctx context.Context, face *image.Gray) (models.ClassificationResult, error)
}

// Dispatcher is the alert gate.
type Dispatcher interface {
	TryAlert(ctx context.Context, person string, frame *models.Frame) (alert.Outcome, error)
	Remaining() time.Duration
}

// ReportSink receives the payload of a sent alert. Implementations handle
// their own failures.
type ReportSink interface {
	Report(ctx context.Context, payload models.AlertPayload)
}

// Annotation is one classified face of a frame.
type Annotation struct {
	Region  models.FaceRegion
	Result  models.ClassificationResult
	Matched bool
}

// Annotator renders per-frame results, e.g. in a preview window.
type Annotator interface {
	Annotate(frame *models.Frame, faces []Annotation, cooldown time.Duration)
}
