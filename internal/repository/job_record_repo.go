// Package repository provides data access for persisted job history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aura-studio/aura/internal/database"
	"github.com/aura-studio/aura/internal/models"
)

// JobRecordRepository stores terminal job records.
type JobRecordRepository interface {
	// Create inserts a record, replacing any existing record for the job.
	Create(ctx context.Context, record *models.JobRecord) error
	// GetByJobID returns the record for a job, or nil when absent.
	GetByJobID(ctx context.Context, jobID string) (*models.JobRecord, error)
	// List returns records newest first with pagination, plus the total count.
	List(ctx context.Context, offset, limit int) ([]*models.JobRecord, int64, error)
	// DeleteOlderThan removes records that ended before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRecordRepository struct {
	db *database.DB
}

// NewJobRecordRepository creates a GORM-backed record repository.
func NewJobRecordRepository(db *database.DB) JobRecordRepository {
	return &jobRecordRepository{db: db}
}

func (r *jobRecordRepository) Create(ctx context.Context, record *models.JobRecord) error {
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", record.JobID).Delete(&models.JobRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return fmt.Errorf("creating job record: %w", err)
	}
	return nil
}

func (r *jobRecordRepository) GetByJobID(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job record: %w", err)
	}
	return &record, nil
}

func (r *jobRecordRepository) List(ctx context.Context, offset, limit int) ([]*models.JobRecord, int64, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.JobRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting job records: %w", err)
	}

	var records []*models.JobRecord
	err := r.db.WithContext(ctx).
		Order("ended_utc DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing job records: %w", err)
	}
	return records, total, nil
}

func (r *jobRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("ended_utc < ?", cutoff).
		Delete(&models.JobRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old job records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
