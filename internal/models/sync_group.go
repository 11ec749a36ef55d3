package models

import "time"

// SyncGroup is the replication scope: one master tenant plus the slaves
// mirroring its schema.
type SyncGroup struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	Name            string    `gorm:"column:name"`
	Description     string    `gorm:"column:description"`
	MasterAccountID int64     `gorm:"column:master_account_id"`
	IsActive        bool      `gorm:"column:is_active"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (SyncGroup) TableName() string {
	return "sync_groups"
}
