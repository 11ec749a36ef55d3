package engine

import (
	"context"
	"fmt"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// MappingStore persists master→slave entity ID pairs per (sync group,
// slave account). Implemented by repository.MappingRepository.
type MappingStore interface {
	UpsertPipelineMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error
	UpsertStageMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error
	UpsertFieldGroupMapping(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType, masterID, slaveID string) error
	UpsertFieldMapping(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType, masterID, slaveID int64) error
	UpsertRoleMapping(ctx context.Context, groupID, slaveAccountID, masterID, slaveID int64) error

	PipelineMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error)
	StageMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error)
	FieldGroupMappings(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType) (map[string]string, error)
	FieldMappings(ctx context.Context, groupID, slaveAccountID int64, entity kommo.EntityType) (map[int64]int64, error)
	RoleMappings(ctx context.Context, groupID, slaveAccountID int64) (map[int64]int64, error)
}

// Mappings is the in-memory identity map for one (sync group, slave)
// pair. Every upsert writes through to the store, so a mapping exists on
// disk the moment the slave entity is confirmed. A master ID maps to at
// most one slave ID.
type Mappings struct {
	store          MappingStore
	groupID        int64
	slaveAccountID int64

	pipelines map[int64]int64
	stages    map[int64]int64
	groups    map[kommo.EntityType]map[string]string
	fields    map[kommo.EntityType]map[int64]int64
	roles     map[int64]int64
}

// NewMappings builds an empty mapping table bound to the store.
func NewMappings(store MappingStore, groupID, slaveAccountID int64) *Mappings {
	return &Mappings{
		store:          store,
		groupID:        groupID,
		slaveAccountID: slaveAccountID,
		pipelines:      make(map[int64]int64),
		stages:         make(map[int64]int64),
		groups:         make(map[kommo.EntityType]map[string]string),
		fields:         make(map[kommo.EntityType]map[int64]int64),
		roles:          make(map[int64]int64),
	}
}

// Load merges every persisted mapping for this (group, slave) pair into
// memory. Called before each phase so partial syncs (fields-only,
// roles-only) see what earlier runs established.
func (m *Mappings) Load(ctx context.Context) error {
	pipelines, err := m.store.PipelineMappings(ctx, m.groupID, m.slaveAccountID)
	if err != nil {
		return fmt.Errorf("failed to load pipeline mappings: %w", err)
	}
	for masterID, slaveID := range pipelines {
		m.pipelines[masterID] = slaveID
	}

	stages, err := m.store.StageMappings(ctx, m.groupID, m.slaveAccountID)
	if err != nil {
		return fmt.Errorf("failed to load stage mappings: %w", err)
	}
	for masterID, slaveID := range stages {
		m.stages[masterID] = slaveID
	}

	for _, entity := range kommo.EntityTypes {
		groups, err := m.store.FieldGroupMappings(ctx, m.groupID, m.slaveAccountID, entity)
		if err != nil {
			return fmt.Errorf("failed to load field group mappings: %w", err)
		}
		for masterID, slaveID := range groups {
			m.setGroup(entity, masterID, slaveID)
		}

		fields, err := m.store.FieldMappings(ctx, m.groupID, m.slaveAccountID, entity)
		if err != nil {
			return fmt.Errorf("failed to load field mappings: %w", err)
		}
		for masterID, slaveID := range fields {
			m.setField(entity, masterID, slaveID)
		}
	}

	roles, err := m.store.RoleMappings(ctx, m.groupID, m.slaveAccountID)
	if err != nil {
		return fmt.Errorf("failed to load role mappings: %w", err)
	}
	for masterID, slaveID := range roles {
		m.roles[masterID] = slaveID
	}
	return nil
}

// UpsertPipeline records a pipeline mapping in memory and in the store.
func (m *Mappings) UpsertPipeline(ctx context.Context, masterID, slaveID int64) error {
	if err := m.store.UpsertPipelineMapping(ctx, m.groupID, m.slaveAccountID, masterID, slaveID); err != nil {
		return fmt.Errorf("failed to persist pipeline mapping %d: %w", masterID, err)
	}
	m.pipelines[masterID] = slaveID
	return nil
}

// Pipeline resolves a master pipeline ID.
func (m *Mappings) Pipeline(masterID int64) (int64, bool) {
	slaveID, ok := m.pipelines[masterID]
	return slaveID, ok
}

// UpsertStage records a stage mapping. System stage IDs are refused on
// either side: the CRM owns them and they never enter the map.
func (m *Mappings) UpsertStage(ctx context.Context, masterID, slaveID int64) error {
	if IsSystemStageID(masterID) || IsSystemStageID(slaveID) {
		return fmt.Errorf("stage %d->%d is system-managed and cannot be mapped", masterID, slaveID)
	}
	if err := m.store.UpsertStageMapping(ctx, m.groupID, m.slaveAccountID, masterID, slaveID); err != nil {
		return fmt.Errorf("failed to persist stage mapping %d: %w", masterID, err)
	}
	m.stages[masterID] = slaveID
	return nil
}

// Stage resolves a master stage ID.
func (m *Mappings) Stage(masterID int64) (int64, bool) {
	slaveID, ok := m.stages[masterID]
	return slaveID, ok
}

// UpsertFieldGroup records a field group mapping for one entity kind.
func (m *Mappings) UpsertFieldGroup(ctx context.Context, entity kommo.EntityType, masterID, slaveID string) error {
	if err := m.store.UpsertFieldGroupMapping(ctx, m.groupID, m.slaveAccountID, entity, masterID, slaveID); err != nil {
		return fmt.Errorf("failed to persist field group mapping %s: %w", masterID, err)
	}
	m.setGroup(entity, masterID, slaveID)
	return nil
}

// FieldGroup resolves a master field group ID for one entity kind.
func (m *Mappings) FieldGroup(entity kommo.EntityType, masterID string) (string, bool) {
	groups, ok := m.groups[entity]
	if !ok {
		return "", false
	}
	slaveID, ok := groups[masterID]
	return slaveID, ok
}

// UpsertField records a custom field mapping for one entity kind.
func (m *Mappings) UpsertField(ctx context.Context, entity kommo.EntityType, masterID, slaveID int64) error {
	if err := m.store.UpsertFieldMapping(ctx, m.groupID, m.slaveAccountID, entity, masterID, slaveID); err != nil {
		return fmt.Errorf("failed to persist field mapping %d: %w", masterID, err)
	}
	m.setField(entity, masterID, slaveID)
	return nil
}

// Field resolves a master custom field ID for one entity kind.
func (m *Mappings) Field(entity kommo.EntityType, masterID int64) (int64, bool) {
	fields, ok := m.fields[entity]
	if !ok {
		return 0, false
	}
	slaveID, ok := fields[masterID]
	return slaveID, ok
}

// UpsertRole records a role mapping.
func (m *Mappings) UpsertRole(ctx context.Context, masterID, slaveID int64) error {
	if err := m.store.UpsertRoleMapping(ctx, m.groupID, m.slaveAccountID, masterID, slaveID); err != nil {
		return fmt.Errorf("failed to persist role mapping %d: %w", masterID, err)
	}
	m.roles[masterID] = slaveID
	return nil
}

// Role resolves a master role ID.
func (m *Mappings) Role(masterID int64) (int64, bool) {
	slaveID, ok := m.roles[masterID]
	return slaveID, ok
}

func (m *Mappings) setGroup(entity kommo.EntityType, masterID, slaveID string) {
	if m.groups[entity] == nil {
		m.groups[entity] = make(map[string]string)
	}
	m.groups[entity][masterID] = slaveID
}

func (m *Mappings) setField(entity kommo.EntityType, masterID, slaveID int64) {
	if m.fields[entity] == nil {
		m.fields[entity] = make(map[int64]int64)
	}
	m.fields[entity][masterID] = slaveID
}
