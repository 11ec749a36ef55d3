package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/webwaysys/kommo-sync/internal/kommo"
	"github.com/webwaysys/kommo-sync/internal/models"
)

// MappingRepository persists the master→slave identity maps. It satisfies
// engine.MappingStore. Upserts resolve on the natural key, so re-syncing
// an entity overwrites its slave ID in place.
type MappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

var mappingConflict = clause.OnConflict{
	Columns: []clause.Column{
		{Name: "sync_group_id"}, {Name: "slave_account_id"}, {Name: "master_id"},
	},
	DoUpdates: clause.AssignmentColumns([]string{"slave_id", "updated_at"}),
}

var entityMappingConflict = clause.OnConflict{
	Columns: []clause.Column{
		{Name: "sync_group_id"}, {Name: "slave_account_id"}, {Name: "entity_type"}, {Name: "master_id"},
	},
	DoUpdates: clause.AssignmentColumns([]string{"slave_id", "updated_at"}),
}

// UpsertPipelineMapping records or overwrites one pipeline mapping.
func (r *MappingRepository) UpsertPipelineMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error {
	row := models.PipelineMapping{
		SyncGroupID:    groupID,
		SlaveAccountID: slaveAccountID,
		MasterID:       masterID,
		SlaveID:        slaveID,
		UpdatedAt:      time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(mappingConflict).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert pipeline mapping: %w", result.Error)
	}
	return nil
}

// UpsertStageMapping records or overwrites one stage mapping.
func (r *MappingRepository) UpsertStageMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error {
	row := models.StageMapping{
		SyncGroupID:    groupID,
		SlaveAccountID: slaveAccountID,
		MasterID:       masterID,
		SlaveID:        slaveID,
		UpdatedAt:      time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(mappingConflict).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert stage mapping: %w", result.Error)
	}
	return nil
}

// UpsertFieldGroupMapping records or overwrites one field group mapping.
func (r *MappingRepository) UpsertFieldGroupMapping(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType, masterID, slaveID string) error {
	row := models.FieldGroupMapping{
		SyncGroupID:    groupID,
		SlaveAccountID: slaveAccountID,
		EntityType:     string(entity),
		MasterID:       masterID,
		SlaveID:        slaveID,
		UpdatedAt:      time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(entityMappingConflict).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert field group mapping: %w", result.Error)
	}
	return nil
}

// UpsertFieldMapping records or overwrites one custom field mapping.
func (r *MappingRepository) UpsertFieldMapping(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType, masterID, slaveID int64) error {
	row := models.CustomFieldMapping{
		SyncGroupID:    groupID,
		SlaveAccountID: slaveAccountID,
		EntityType:     string(entity),
		MasterID:       masterID,
		SlaveID:        slaveID,
		UpdatedAt:      time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(entityMappingConflict).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert custom field mapping: %w", result.Error)
	}
	return nil
}

// UpsertRoleMapping records or overwrites one role mapping.
func (r *MappingRepository) UpsertRoleMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error {
	row := models.RoleMapping{
		SyncGroupID:    groupID,
		SlaveAccountID: slaveAccountID,
		MasterID:       masterID,
		SlaveID:        slaveID,
		UpdatedAt:      time.Now(),
	}
	result := r.db.WithContext(ctx).Clauses(mappingConflict).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert role mapping: %w", result.Error)
	}
	return nil
}

// PipelineMappings loads all pipeline mappings for one (group, slave).
func (r *MappingRepository) PipelineMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error) {
	var rows []models.PipelineMapping
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND slave_account_id = ?", groupID, slaveAccountID).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load pipeline mappings: %w", result.Error)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.MasterID] = row.SlaveID
	}
	return out, nil
}

// StageMappings loads all stage mappings for one (group, slave).
func (r *MappingRepository) StageMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error) {
	var rows []models.StageMapping
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND slave_account_id = ?", groupID, slaveAccountID).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load stage mappings: %w", result.Error)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.MasterID] = row.SlaveID
	}
	return out, nil
}

// FieldGroupMappings loads the field group mappings of one entity kind.
func (r *MappingRepository) FieldGroupMappings(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType) (map[string]string, error) {
	var rows []models.FieldGroupMapping
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND slave_account_id = ? AND entity_type = ?", groupID, slaveAccountID, string(entity)).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load field group mappings: %w", result.Error)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.MasterID] = row.SlaveID
	}
	return out, nil
}

// FieldMappings loads the custom field mappings of one entity kind.
func (r *MappingRepository) FieldMappings(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType) (map[int64]int64, error) {
	var rows []models.CustomFieldMapping
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND slave_account_id = ? AND entity_type = ?", groupID, slaveAccountID, string(entity)).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load custom field mappings: %w", result.Error)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.MasterID] = row.SlaveID
	}
	return out, nil
}

// RoleMappings loads all role mappings for one (group, slave).
func (r *MappingRepository) RoleMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error) {
	var rows []models.RoleMapping
	result := r.db.WithContext(ctx).
		Where("sync_group_id = ? AND slave_account_id = ?", groupID, slaveAccountID).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load role mappings: %w", result.Error)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.MasterID] = row.SlaveID
	}
	return out, nil
}

// DeleteForGroup removes every mapping of a sync group. Called when the
// operator dissolves the group; nothing else deletes mappings.
func (r *MappingRepository) DeleteForGroup(ctx context.Context, groupID int64) error {
	for _, model := range []interface{}{
		&models.PipelineMapping{},
		&models.StageMapping{},
		&models.FieldGroupMapping{},
		&models.CustomFieldMapping{},
		&models.RoleMapping{},
	} {
		result := r.db.WithContext(ctx).Where("sync_group_id = ?", groupID).Delete(model)
		if result.Error != nil {
			return fmt.Errorf("failed to delete mappings for group %d: %w", groupID, result.Error)
		}
	}
	return nil
}
