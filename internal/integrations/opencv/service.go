package opencv

import (
	"fmt"
	"sync"

	"trace-rescue/config"
	"trace-rescue/internal/labels"

	log "github.com/sirupsen/logrus"
)

// Service bündelt die OpenCV-Ressourcen des Erkenners.
type Service struct {
	Locator    *CascadeLocator
	Classifier *LBPHClassifier

	mutex  sync.Mutex
	closed bool
}

// NewService lädt Kaskade und Modell. Das Label-Mapping wird vor dem Modell
// geladen, damit ein unvollständiges Trainingsergebnis früh auffällt.
func NewService(det config.DetectionConfig, rec config.RecognizerConfig) (*Service, error) {
	labelMap, err := labels.Load(rec.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("could not load labels: %w", err)
	}
	log.Infof("Loaded %d labels from %s", labelMap.Len(), rec.LabelsPath)

	classifier, err := LoadLBPHClassifier(rec.ModelPath, labelMap)
	if err != nil {
		return nil, err
	}

	locator, err := NewCascadeLocator(det.CascadePath, CascadeParams{
		ScaleFactor:  det.ScaleFactor,
		MinNeighbors: det.MinNeighbors,
		MinSize:      det.MinFaceSize,
	})
	if err != nil {
		return nil, err
	}

	return &Service{Locator: locator, Classifier: classifier}, nil
}

// NewLocatorService lädt nur die Kaskade, z.B. wenn CompreFace klassifiziert.
func NewLocatorService(det config.DetectionConfig) (*Service, error) {
	locator, err := NewCascadeLocator(det.CascadePath, CascadeParams{
		ScaleFactor:  det.ScaleFactor,
		MinNeighbors: det.MinNeighbors,
		MinSize:      det.MinFaceSize,
	})
	if err != nil {
		return nil, err
	}
	return &Service{Locator: locator}, nil
}

// Close gibt die Ressourcen frei.
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.Locator != nil {
		err = s.Locator.Close()
	}
	if s.Classifier != nil {
		if cerr := s.Classifier.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
