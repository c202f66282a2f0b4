package compreface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"trace-rescue/config"
	"trace-rescue/internal/core/models"
)

// ErrNoFace wird zurückgegeben, wenn CompreFace im Ausschnitt kein Gesicht findet.
var ErrNoFace = errors.New("no face found by CompreFace")

// Classifier bildet die CompreFace-Ähnlichkeit (0..1, höher ist besser) auf
// eine Distanz (0..100, niedriger ist besser) ab.
type Classifier struct {
	client *Client
}

// NewClassifier erstellt einen Classifier und prüft die Erreichbarkeit.
func NewClassifier(ctx context.Context, cfg config.CompreFaceConfig) (*Classifier, error) {
	c := NewClient(cfg)
	if _, err := c.Subjects(ctx); err != nil {
		return nil, fmt.Errorf("CompreFace not reachable: %w", err)
	}
	return &Classifier{client: c}, nil
}

// Classify lässt den normalisierten Ausschnitt von CompreFace erkennen.
func (c *Classifier) Classify(ctx context.Context, face *image.Gray) (models.ClassificationResult, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, face, &jpeg.Options{Quality: 95}); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to encode face: %w", err)
	}

	resp, err := c.client.Recognize(ctx, buf.Bytes(), "face.jpg")
	if err != nil {
		return models.ClassificationResult{}, err
	}
	return bestMatch(resp)
}

func bestMatch(resp *RecognitionResponse) (models.ClassificationResult, error) {
	if len(resp.Result) == 0 {
		return models.ClassificationResult{}, ErrNoFace
	}

	best := Subject{}
	found := false
	for _, r := range resp.Result {
		for _, s := range r.Subjects {
			if !found || s.Similarity > best.Similarity {
				best, found = s, true
			}
		}
	}
	if !found {
		return models.ClassificationResult{Name: models.UnknownName, Confidence: 100}, nil
	}
	return models.ClassificationResult{
		Label:      best.Subject,
		Name:       best.Subject,
		Confidence: Distance(best.Similarity),
	}, nil
}

// Distance rechnet eine Ähnlichkeit in eine Distanz um.
func Distance(similarity float64) float64 {
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return (1 - similarity) * 100
}
