package models

import "time"

// The mapping tables record which slave entity mirrors which master entity
// for a given (sync group, slave account). A master ID maps to at most one
// slave ID; the unique index enforces it and upserts overwrite in place.

type PipelineMapping struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	SyncGroupID    int64     `gorm:"column:sync_group_id;uniqueIndex:idx_pipeline_mappings_key"`
	SlaveAccountID int64     `gorm:"column:slave_account_id;uniqueIndex:idx_pipeline_mappings_key"`
	MasterID       int64     `gorm:"column:master_id;uniqueIndex:idx_pipeline_mappings_key"`
	SlaveID        int64     `gorm:"column:slave_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (PipelineMapping) TableName() string {
	return "pipeline_mappings"
}

type StageMapping struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	SyncGroupID    int64     `gorm:"column:sync_group_id;uniqueIndex:idx_stage_mappings_key"`
	SlaveAccountID int64     `gorm:"column:slave_account_id;uniqueIndex:idx_stage_mappings_key"`
	MasterID       int64     `gorm:"column:master_id;uniqueIndex:idx_stage_mappings_key"`
	SlaveID        int64     `gorm:"column:slave_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (StageMapping) TableName() string {
	return "stage_mappings"
}

// FieldGroupMapping keys include the entity kind: group IDs are strings
// scoped per entity ("default" exists on all three), so the kind is part
// of the identity.
type FieldGroupMapping struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	SyncGroupID    int64     `gorm:"column:sync_group_id;uniqueIndex:idx_field_group_mappings_key"`
	SlaveAccountID int64     `gorm:"column:slave_account_id;uniqueIndex:idx_field_group_mappings_key"`
	EntityType     string    `gorm:"column:entity_type;uniqueIndex:idx_field_group_mappings_key"`
	MasterID       string    `gorm:"column:master_id;uniqueIndex:idx_field_group_mappings_key"`
	SlaveID        string    `gorm:"column:slave_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (FieldGroupMapping) TableName() string {
	return "field_group_mappings"
}

type CustomFieldMapping struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	SyncGroupID    int64     `gorm:"column:sync_group_id;uniqueIndex:idx_custom_field_mappings_key"`
	SlaveAccountID int64     `gorm:"column:slave_account_id;uniqueIndex:idx_custom_field_mappings_key"`
	EntityType     string    `gorm:"column:entity_type;uniqueIndex:idx_custom_field_mappings_key"`
	MasterID       int64     `gorm:"column:master_id;uniqueIndex:idx_custom_field_mappings_key"`
	SlaveID        int64     `gorm:"column:slave_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (CustomFieldMapping) TableName() string {
	return "custom_field_mappings"
}

type RoleMapping struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	SyncGroupID    int64     `gorm:"column:sync_group_id;uniqueIndex:idx_role_mappings_key"`
	SlaveAccountID int64     `gorm:"column:slave_account_id;uniqueIndex:idx_role_mappings_key"`
	MasterID       int64     `gorm:"column:master_id;uniqueIndex:idx_role_mappings_key"`
	SlaveID        int64     `gorm:"column:slave_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (RoleMapping) TableName() string {
	return "role_mappings"
}
