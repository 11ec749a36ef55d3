package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/webwaysys/kommo-sync/internal/models"
)

type SyncJobRepository struct {
	db *gorm.DB
}

func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// GetPendingJobs retrieves queued sync jobs, oldest first.
func (r *SyncJobRepository) GetPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	result := r.db.WithContext(ctx).
		Where("status = ?", models.JobPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", result.Error)
	}
	return jobs, nil
}

// GetStuckJobs retrieves jobs left in processing longer than maxAge,
// typically after a crash mid-run.
func (r *SyncJobRepository) GetStuckJobs(ctx context.Context, maxAge time.Duration, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	cutoff := time.Now().Add(-maxAge)
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.JobProcessing, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", result.Error)
	}
	return jobs, nil
}

// UpdateStatus moves a job through its lifecycle. Terminal states also
// stamp processed_at.
func (r *SyncJobRepository) UpdateStatus(ctx context.Context, jobID int64, status models.SyncJobStatus, lastError *string) error {
	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if status == models.JobCompleted || status == models.JobFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	result := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	return nil
}
