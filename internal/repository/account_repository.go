package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/webwaysys/kommo-sync/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, accountID int64) (*models.Account, error) {
	var account models.Account
	result := r.db.WithContext(ctx).First(&account, "id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return &account, nil
}

// GetMaster retrieves the master account of a sync group.
func (r *AccountRepository) GetMaster(ctx context.Context, groupID int64) (*models.Account, error) {
	var account models.Account
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND role = ?", groupID, models.RoleMaster).
		First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get master account: %w", result.Error)
	}
	return &account, nil
}

// GetSlaves retrieves the slave accounts of a sync group in stable order.
func (r *AccountRepository) GetSlaves(ctx context.Context, groupID int64) ([]models.Account, error) {
	var accounts []models.Account
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND role = ?", groupID, models.RoleSlave).
		Order("id ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get slave accounts: %w", result.Error)
	}
	return accounts, nil
}
