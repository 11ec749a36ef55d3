package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/webwaysys/kommo-sync/internal/models"
)

var ErrSyncGroupNotFound = errors.New("sync group not found")

type SyncGroupRepository struct {
	db *gorm.DB
}

func NewSyncGroupRepository(db *gorm.DB) *SyncGroupRepository {
	return &SyncGroupRepository{db: db}
}

// GetByID retrieves a sync group by ID.
func (r *SyncGroupRepository) GetByID(ctx context.Context, groupID int64) (*models.SyncGroup, error) {
	var group models.SyncGroup
	result := r.db.WithContext(ctx).First(&group, "id = ?", groupID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSyncGroupNotFound
		}
		return nil, fmt.Errorf("failed to get sync group: %w", result.Error)
	}
	return &group, nil
}

// GetActive retrieves all active sync groups.
func (r *SyncGroupRepository) GetActive(ctx context.Context) ([]models.SyncGroup, error) {
	var groups []models.SyncGroup
	result := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&groups)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get active sync groups: %w", result.Error)
	}
	return groups, nil
}
