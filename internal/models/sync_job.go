package models

import "time"

// SyncType selects which phases a sync run executes.
type SyncType string

const (
	SyncTypeFull      SyncType = "full"
	SyncTypePipelines SyncType = "pipelines"
	SyncTypeFields    SyncType = "fields"
	SyncTypeRoles     SyncType = "roles"
)

// SyncJobStatus is the processing state of a queued sync request.
type SyncJobStatus string

const (
	JobPending    SyncJobStatus = "pending"
	JobProcessing SyncJobStatus = "processing"
	JobCompleted  SyncJobStatus = "completed"
	JobFailed     SyncJobStatus = "failed"
)

// SyncJob is one operator-requested sync. The control surface inserts
// pending rows; the watcher consumes them.
type SyncJob struct {
	ID          int64         `gorm:"column:id;primaryKey"`
	SyncGroupID int64         `gorm:"column:sync_group_id"`
	SyncType    SyncType      `gorm:"column:sync_type"`
	Status      SyncJobStatus `gorm:"column:status"`
	LastError   *string       `gorm:"column:last_error"`
	CreatedAt   time.Time     `gorm:"column:created_at"`
	UpdatedAt   time.Time     `gorm:"column:updated_at"`
	ProcessedAt *time.Time    `gorm:"column:processed_at"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}
