package detection

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ErrStartup marks failures that prevent the loop from starting.
var ErrStartup = errors.New("startup failed")

// ClassifierLoader loads the model and label artifacts.
type ClassifierLoader func() (FaceClassifier, error)

// SourceOpener opens the video source.
type SourceOpener func(ctx context.Context) (FrameSource, error)

// Prepare loads the classifier and then opens the source. The source is never
// opened when the classifier cannot be loaded.
func Prepare(ctx context.Context, load ClassifierLoader, open SourceOpener) (FaceClassifier, FrameSource, error) {
	classifier, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading recognizer: %v", ErrStartup, err)
	}
	log.Info("Recognizer loaded")

	source, err := open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening video source: %v", ErrStartup, err)
	}
	log.Info("Video source opened")
	return classifier, source, nil
}
