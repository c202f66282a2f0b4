package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trace-rescue/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service deletes detections and their images after the retention period.
type Service struct {
	repo          repository.Repository
	retentionDays int
	imageDir      string
	checkInterval time.Duration
	now           func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewService creates a cleanup service. It returns nil when retentionDays <= 0,
// and all methods accept a nil receiver.
func NewService(repo repository.Repository, retentionDays int, imageDir string, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.Infof("Initializing CleanupService: RetentionDays=%d, ImageDir='%s', CheckInterval=%s", retentionDays, imageDir, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		imageDir:      imageDir,
		checkInterval: checkInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup runs one cycle immediately and then one per interval.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup stops the background routine.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle deletes everything older than the retention period and
// returns the number of removed detections.
func (s *Service) RunCleanupCycle() int {
	if s == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	log.Debugf("Cleanup: Deleting detections older than %s", cutoff.Format(time.RFC3339))

	old, err := s.repo.GetDetectionsBefore(cutoff)
	if err != nil {
		log.Errorf("Cleanup: Error finding old detections: %v", err)
		return 0
	}
	if len(old) == 0 {
		log.Debug("Cleanup: No old detections found.")
		return 0
	}

	deleted, failed := 0, 0
	for _, d := range old {
		if err := s.repo.DeleteDetection(d.ID); err != nil {
			log.Errorf("Cleanup: Failed to delete detection ID %d: %v", d.ID, err)
			failed++
			continue
		}
		deleted++
		if d.ImageFile == "" {
			continue
		}
		path := filepath.Join(s.imageDir, filepath.Base(d.ImageFile))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Cleanup: Failed to delete image '%s' for detection ID %d: %v", path, d.ID, err)
		}
	}

	log.Infof("Cleanup cycle finished. Deleted: %d, Failed: %d", deleted, failed)
	return deleted
}
