package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/webwaysys/kommo-sync/internal/models"
)

type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create inserts a new sync log row in the started state.
func (r *SyncLogRepository) Create(ctx context.Context, log *models.SyncLog) error {
	result := r.db.WithContext(ctx).Create(log)
	if result.Error != nil {
		return fmt.Errorf("failed to create sync log: %w", result.Error)
	}
	return nil
}

// Finish sets the terminal status of a run. The row is never written again
// afterwards.
func (r *SyncLogRepository) Finish(ctx context.Context, id int64, status models.SyncLogStatus, message string, processed, failed int) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             status,
			"message":            message,
			"accounts_processed": processed,
			"accounts_failed":    failed,
			"completed_at":       &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sync log: %w", result.Error)
	}
	return nil
}

// GetRecent returns the latest runs of a sync group, newest first.
func (r *SyncLogRepository) GetRecent(ctx context.Context, groupID int64, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ?", groupID).
		Order("started_at DESC").
		Limit(limit).
		Find(&logs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", result.Error)
	}
	return logs, nil
}
