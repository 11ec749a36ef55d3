package engine

import (
	"context"
	"fmt"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// API is the slice of the Kommo client the engine uses. *kommo.Client
// satisfies it; tests substitute fakes.
type API interface {
	ListPipelines(ctx context.Context) ([]kommo.Pipeline, error)
	ListStatuses(ctx context.Context, pipelineID int64) ([]kommo.Status, error)
	CreatePipeline(ctx context.Context, p kommo.Pipeline) (*kommo.Pipeline, error)
	UpdatePipeline(ctx context.Context, id int64, p kommo.Pipeline) (*kommo.Pipeline, error)
	DeletePipeline(ctx context.Context, id int64) error
	CreateStatus(ctx context.Context, pipelineID int64, s kommo.Status) (*kommo.Status, error)
	UpdateStatus(ctx context.Context, pipelineID, statusID int64, s kommo.Status) (*kommo.Status, error)
	DeleteStatus(ctx context.Context, pipelineID, statusID int64) error
	ListFieldGroups(ctx context.Context, entity kommo.EntityType) ([]kommo.FieldGroup, error)
	CreateFieldGroup(ctx context.Context, entity kommo.EntityType, g kommo.FieldGroup) (*kommo.FieldGroup, error)
	UpdateFieldGroup(ctx context.Context, entity kommo.EntityType, id string, g kommo.FieldGroup) (*kommo.FieldGroup, error)
	DeleteFieldGroup(ctx context.Context, entity kommo.EntityType, id string) error
	ListCustomFields(ctx context.Context, entity kommo.EntityType) ([]kommo.CustomField, error)
	CreateCustomField(ctx context.Context, entity kommo.EntityType, f kommo.CustomField) (*kommo.CustomField, error)
	UpdateCustomField(ctx context.Context, entity kommo.EntityType, id int64, f kommo.CustomField) (*kommo.CustomField, error)
	DeleteCustomField(ctx context.Context, entity kommo.EntityType, id int64) error
	ListRoles(ctx context.Context) ([]kommo.Role, error)
	CreateRole(ctx context.Context, r kommo.Role) (*kommo.Role, error)
	UpdateRole(ctx context.Context, id int64, r kommo.Role) (*kommo.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	Ping(ctx context.Context) (*kommo.AccountInfo, error)
}

const (
	minSort = 1
	maxSort = 10000
)

// PipelineSnapshot is one master pipeline with its stages in API order.
type PipelineSnapshot struct {
	Pipeline kommo.Pipeline
	Stages   []kommo.Status
}

// Snapshot is the normalized schema of the master tenant at one extraction
// instant. It lives for the duration of a single sync run.
type Snapshot struct {
	Pipelines   []PipelineSnapshot
	FieldGroups map[kommo.EntityType][]kommo.FieldGroup
	Fields      map[kommo.EntityType][]kommo.CustomField
	Roles       []kommo.Role
}

// Extract reads the full schema from the master tenant. It is read-only
// and fails fast: a partial snapshot is never returned.
func Extract(ctx context.Context, master API) (*Snapshot, error) {
	snap := &Snapshot{
		FieldGroups: make(map[kommo.EntityType][]kommo.FieldGroup),
		Fields:      make(map[kommo.EntityType][]kommo.CustomField),
	}

	pipelines, err := master.ListPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list master pipelines: %w", err)
	}
	for _, p := range pipelines {
		stages, err := master.ListStatuses(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stages of pipeline %d: %w", p.ID, err)
		}
		for i := range stages {
			stages[i].Sort = clampSort(stages[i].Sort)
			if stages[i].Color == "" {
				stages[i].Color = DefaultStageColor
			}
		}
		p.Sort = clampSort(p.Sort)
		p.Embedded = nil
		snap.Pipelines = append(snap.Pipelines, PipelineSnapshot{Pipeline: p, Stages: stages})
	}

	for _, entity := range kommo.EntityTypes {
		groups, err := master.ListFieldGroups(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s field groups: %w", entity, err)
		}
		for i := range groups {
			groups[i].Sort = clampSort(groups[i].Sort)
		}
		snap.FieldGroups[entity] = groups

		fields, err := master.ListCustomFields(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s custom fields: %w", entity, err)
		}
		for i := range fields {
			fields[i].Sort = clampSort(fields[i].Sort)
			// Enum IDs belong to the master account; the slave generates
			// its own on create.
			for j := range fields[i].Enums {
				fields[i].Enums[j].ID = 0
			}
		}
		snap.Fields[entity] = fields
	}

	roles, err := master.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list master roles: %w", err)
	}
	snap.Roles = roles

	return snap, nil
}

func clampSort(sort int) int {
	if sort < minSort {
		return minSort
	}
	if sort > maxSort {
		return maxSort
	}
	return sort
}
