package repository

import (
	"errors"
	"time"

	"trace-rescue/internal/core/models"

	"gorm.io/gorm"
)

// Repository definiert die Datenbank-Operationen für Funde
type Repository interface {
	SaveDetection(d *models.Detection) error
	GetDetectionByID(id uint) (*models.Detection, error)
	GetLatestDetection() (*models.Detection, error)
	GetDetections(limit, offset int) ([]models.Detection, int64, error)
	GetDetectionsBefore(cutoff time.Time) ([]models.Detection, error)
	DeleteDetection(id uint) error
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implementiert Repository für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveDetection speichert einen Fund
func (r *SQLiteRepository) SaveDetection(d *models.Detection) error {
	return r.db.Save(d).Error
}

// GetDetectionByID holt einen Fund; nil ohne Fehler, wenn er nicht existiert
func (r *SQLiteRepository) GetDetectionByID(id uint) (*models.Detection, error) {
	var d models.Detection
	if err := r.db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetLatestDetection liefert den zuletzt eingegangenen Fund oder nil
func (r *SQLiteRepository) GetLatestDetection() (*models.Detection, error) {
	var d models.Detection
	err := r.db.Order("received_at DESC").Order("id DESC").First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// GetDetections holt Funde mit Pagination, neueste zuerst
func (r *SQLiteRepository) GetDetections(limit, offset int) ([]models.Detection, int64, error) {
	var detections []models.Detection
	var total int64

	if err := r.db.Model(&models.Detection{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := r.db.Order("received_at DESC").Limit(limit).Offset(offset).Find(&detections)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return detections, total, nil
}

// GetDetectionsBefore liefert alle Funde, die vor cutoff eingegangen sind
func (r *SQLiteRepository) GetDetectionsBefore(cutoff time.Time) ([]models.Detection, error) {
	var detections []models.Detection
	err := r.db.Where("received_at < ?", cutoff).Find(&detections).Error
	return detections, err
}

// DeleteDetection löscht einen Fund endgültig
func (r *SQLiteRepository) DeleteDetection(id uint) error {
	return r.db.Unscoped().Delete(&models.Detection{}, id).Error
}

// GetStatistics fasst die gespeicherten Funde zusammen
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Detection{}).Count(&stats.TotalDetections).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Detection{}).Distinct("name").Count(&stats.DistinctPersons).Error; err != nil {
		return stats, err
	}

	latest, err := r.GetLatestDetection()
	if err != nil {
		return stats, err
	}
	if latest != nil {
		stats.LatestDetection = latest.ReceivedAt
	}
	return stats, nil
}
