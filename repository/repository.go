package repository

import (
	"fmt"

	"github.com/cepro/linewatch/telemetry"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository buffers history rows on the local file system (sqlite) before they
// are uploaded to Supabase, so an offline spell loses nothing.
type Repository struct {
	db *gorm.DB
}

func New(path string) (*Repository, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredSample{}, &StoredRelayEvent{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{
		db: db,
	}, nil
}

func (r *Repository) AddSample(sample telemetry.Sample) error {
	stored := newStoredSample(sample)
	result := r.db.Create(&stored)
	return result.Error
}

func (r *Repository) AddRelayEvent(event telemetry.RelayEvent) error {
	stored := newStoredRelayEvent(event)
	result := r.db.Create(&stored)
	return result.Error
}

// DeleteRows removes the given batch ([]StoredSample or []StoredRelayEvent) from
// the buffer, keyed by primary id.
func (r *Repository) DeleteRows(rows interface{}) error {
	switch typed := rows.(type) {
	case []StoredSample:
		return r.db.Delete(&typed).Error
	case []StoredRelayEvent:
		return r.db.Delete(&typed).Error
	}
	return fmt.Errorf("unsupported row type %T", rows)
}

// GetSamples returns up to limit buffered samples. When fresh is true only rows
// that have never failed an upload are returned, otherwise only rows that have.
func (r *Repository) GetSamples(limit int, fresh bool) ([]StoredSample, error) {
	var samples []StoredSample

	query := r.db.Limit(limit).Order("upload_attempt_count asc, time desc")
	if fresh {
		query = query.Where("upload_attempt_count = ?", 0)
	} else {
		query = query.Where("upload_attempt_count > ?", 0)
	}
	result := query.Find(&samples)
	if result.Error != nil {
		return nil, result.Error
	}
	return samples, nil
}

func (r *Repository) GetRelayEvents(limit int, fresh bool) ([]StoredRelayEvent, error) {
	var events []StoredRelayEvent

	query := r.db.Limit(limit).Order("upload_attempt_count asc, time desc")
	if fresh {
		query = query.Where("upload_attempt_count = ?", 0)
	} else {
		query = query.Where("upload_attempt_count > ?", 0)
	}
	result := query.Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

// IncrementUploadAttemptCount bumps the attempt counter on every row in the
// batch, moving them from the "fresh" to the "old" retry pool.
func (r *Repository) IncrementUploadAttemptCount(rows interface{}) error {
	increment := gorm.Expr("upload_attempt_count + ?", 1)
	switch typed := rows.(type) {
	case []StoredSample:
		ids := make([]uuid.UUID, 0, len(typed))
		for _, row := range typed {
			ids = append(ids, row.ID)
		}
		return r.db.Model(&StoredSample{}).Where("id IN ?", ids).
			UpdateColumn("upload_attempt_count", increment).Error
	case []StoredRelayEvent:
		ids := make([]uuid.UUID, 0, len(typed))
		for _, row := range typed {
			ids = append(ids, row.ID)
		}
		return r.db.Model(&StoredRelayEvent{}).Where("id IN ?", ids).
			UpdateColumn("upload_attempt_count", increment).Error
	}
	return fmt.Errorf("unsupported row type %T", rows)
}
