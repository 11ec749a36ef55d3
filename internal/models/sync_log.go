package models

import "time"

// SyncLogStatus is the lifecycle state of one sync run record.
type SyncLogStatus string

const (
	SyncLogStarted   SyncLogStatus = "started"
	SyncLogCompleted SyncLogStatus = "completed"
	SyncLogFailed    SyncLogStatus = "failed"
)

// SyncLog is the append-only record of one sync run. Rows are finalized
// once and never mutated afterwards.
type SyncLog struct {
	ID                int64         `gorm:"column:id;primaryKey"`
	SyncGroupID       int64         `gorm:"column:sync_group_id"`
	SyncType          string        `gorm:"column:sync_type"`
	Status            SyncLogStatus `gorm:"column:status"`
	Message           string        `gorm:"column:message"`
	AccountsProcessed int           `gorm:"column:accounts_processed"`
	AccountsFailed    int           `gorm:"column:accounts_failed"`
	StartedAt         time.Time     `gorm:"column:started_at"`
	CompletedAt       *time.Time    `gorm:"column:completed_at"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
