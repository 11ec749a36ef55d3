package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// FieldReplicator converges custom field groups and custom fields for the
// three entity kinds, translating every referenced pipeline, stage and
// group ID through the mapping table.
type FieldReplicator struct {
	cfg    Config
	logger zerolog.Logger
}

func NewFieldReplicator(cfg Config, logger zerolog.Logger) *FieldReplicator {
	return &FieldReplicator{cfg: cfg, logger: logger.With().Str("phase", "fields").Logger()}
}

// slaveStageIndex is a live read of the slave's pipelines and stages, taken
// at phase start. required_statuses entries are checked against it so stale
// mappings never reach the API.
type slaveStageIndex struct {
	stages map[int64]map[int64]struct{}
}

func loadSlaveStageIndex(ctx context.Context, slave API) (*slaveStageIndex, error) {
	pipelines, err := slave.ListPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slave pipelines: %w", err)
	}
	idx := &slaveStageIndex{stages: make(map[int64]map[int64]struct{}, len(pipelines))}
	for _, p := range pipelines {
		statuses, err := slave.ListStatuses(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list stages of slave pipeline %d: %w", p.ID, err)
		}
		set := make(map[int64]struct{}, len(statuses))
		for _, st := range statuses {
			set[st.ID] = struct{}{}
		}
		idx.stages[p.ID] = set
	}
	return idx, nil
}

func (idx *slaveStageIndex) has(pipelineID, statusID int64) bool {
	set, ok := idx.stages[pipelineID]
	if !ok {
		return false
	}
	_, ok = set[statusID]
	return ok
}

// Sync reconciles field groups first, then custom fields, per entity kind.
// Groups must exist before fields so group references can resolve.
func (r *FieldReplicator) Sync(ctx context.Context, slave API, snap *Snapshot, m *Mappings, progress ProgressFunc) (*PhaseResult, error) {
	live, err := loadSlaveStageIndex(ctx, slave)
	if err != nil {
		return nil, err
	}

	res := &PhaseResult{}
	for _, entity := range kommo.EntityTypes {
		if ctx.Err() != nil {
			break
		}
		r.syncGroups(ctx, slave, entity, snap, m, res, progress)
		r.syncFields(ctx, slave, entity, snap, m, live, res, progress)
	}
	return res, nil
}

func (r *FieldReplicator) syncGroups(ctx context.Context, slave API, entity kommo.EntityType, snap *Snapshot, m *Mappings, res *PhaseResult, progress ProgressFunc) {
	slaveGroups, err := slave.ListFieldGroups(ctx, entity)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("failed to list %s field groups on slave: %w", entity, err))
		return
	}
	slaveByName := make(map[string]kommo.FieldGroup, len(slaveGroups))
	for _, g := range slaveGroups {
		slaveByName[g.Name] = g
	}

	masterGroups := snap.FieldGroups[entity]
	batch := RunBatches(ctx, masterGroups, r.cfg.batchSize(), r.cfg.batchDelay(), progress, func(ctx context.Context, g kommo.FieldGroup) error {
		if existing, ok := slaveByName[g.Name]; ok {
			return m.UpsertFieldGroup(ctx, entity, g.ID, existing.ID)
		}
		created, err := slave.CreateFieldGroup(ctx, entity, kommo.FieldGroup{Name: g.Name, Sort: g.Sort})
		if err != nil {
			return fmt.Errorf("failed to create %s field group %q: %w", entity, g.Name, err)
		}
		if err := m.UpsertFieldGroup(ctx, entity, g.ID, created.ID); err != nil {
			return err
		}
		res.Created++
		return nil
	})
	res.Errors = append(res.Errors, batch.Errors...)

	masterNames := make(map[string]struct{}, len(masterGroups))
	for _, g := range masterGroups {
		masterNames[g.Name] = struct{}{}
	}
	for _, g := range slaveGroups {
		if ctx.Err() != nil {
			return
		}
		if _, ok := masterNames[g.Name]; ok {
			continue
		}
		if err := slave.DeleteFieldGroup(ctx, entity, g.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("failed to delete %s field group %q: %w", entity, g.Name, err))
			continue
		}
		res.Deleted++
	}
}

func (r *FieldReplicator) syncFields(ctx context.Context, slave API, entity kommo.EntityType, snap *Snapshot, m *Mappings, live *slaveStageIndex, res *PhaseResult, progress ProgressFunc) {
	slaveFields, err := slave.ListCustomFields(ctx, entity)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("failed to list %s custom fields on slave: %w", entity, err))
		return
	}

	pool := make([]kommo.CustomField, 0, len(slaveFields))
	for _, f := range slaveFields {
		if IsReservedFieldCode(f.Code) {
			continue
		}
		pool = append(pool, f)
	}

	consumed := make(map[int64]struct{})
	var masterFields []kommo.CustomField
	for _, f := range snap.Fields[entity] {
		if IsReservedFieldCode(f.Code) {
			continue
		}
		masterFields = append(masterFields, f)
	}

	batch := RunBatches(ctx, masterFields, r.cfg.batchSize(), r.cfg.batchDelay(), progress, func(ctx context.Context, f kommo.CustomField) error {
		candidates := make([]kommo.CustomField, 0, len(pool))
		for _, c := range pool {
			if _, used := consumed[c.ID]; !used {
				candidates = append(candidates, c)
			}
		}
		matched, rule := MatchField(f, candidates)
		payload := r.buildFieldPayload(entity, f, m, live, res)

		if matched == nil {
			created, err := r.writeField(ctx, slave, entity, payload, nil, res)
			if err != nil {
				return fmt.Errorf("failed to create %s field %q: %w", entity, f.Name, err)
			}
			if err := m.UpsertField(ctx, entity, f.ID, created.ID); err != nil {
				return err
			}
			res.Created++
			return nil
		}

		consumed[matched.ID] = struct{}{}
		r.logger.Debug().Str("field", f.Name).Str("rule", rule).Msg("matched existing slave field")
		if err := m.UpsertField(ctx, entity, f.ID, matched.ID); err != nil {
			return err
		}
		if !fieldNeedsUpdate(payload, *matched) {
			return nil
		}
		if _, err := r.writeField(ctx, slave, entity, payload, &matched.ID, res); err != nil {
			return fmt.Errorf("failed to update %s field %q: %w", entity, f.Name, err)
		}
		res.Updated++
		return nil
	})
	res.Errors = append(res.Errors, batch.Errors...)

	for _, f := range pool {
		if ctx.Err() != nil {
			return
		}
		if _, used := consumed[f.ID]; used {
			continue
		}
		if err := slave.DeleteCustomField(ctx, entity, f.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("failed to delete %s field %q: %w", entity, f.Name, err))
			continue
		}
		res.Deleted++
	}
}

// buildFieldPayload translates a master field into the shape the slave
// accepts: coerced type, translated group, regenerated enums, default
// currency for monetary fields and fully translated required_statuses.
func (r *FieldReplicator) buildFieldPayload(entity kommo.EntityType, f kommo.CustomField, m *Mappings, live *slaveStageIndex, res *PhaseResult) kommo.CustomField {
	out := kommo.CustomField{
		Name:       f.Name,
		Type:       TranslateFieldType(f.Type),
		Code:       f.Code,
		Sort:       f.Sort,
		IsRequired: f.IsRequired,
	}

	if f.GroupID != "" {
		if slaveGroupID, ok := m.FieldGroup(entity, f.GroupID); ok {
			out.GroupID = slaveGroupID
		} else {
			r.logger.Warn().
				Str("entity", string(entity)).
				Str("field", f.Name).
				Str("group_id", f.GroupID).
				Msg("field group mapping missing, field will be created without a group")
			res.Warnings++
		}
	}

	for _, e := range f.Enums {
		out.Enums = append(out.Enums, kommo.FieldEnum{Value: e.Value, Sort: e.Sort})
	}

	if out.Type == "monetary" || out.Type == "price" {
		out.Currency = f.Currency
		if out.Currency == "" {
			out.Currency = r.cfg.defaultCurrency()
		}
	}

	out.RequiredStatuses = r.translateRequiredStatuses(entity, f, m, live, res)
	return out
}

// translateRequiredStatuses maps each (pipeline, stage) pair onto the slave
// and keeps only pairs that exist there right now. System stages cannot
// carry required-field rules and are dropped outright.
func (r *FieldReplicator) translateRequiredStatuses(entity kommo.EntityType, f kommo.CustomField, m *Mappings, live *slaveStageIndex, res *PhaseResult) []kommo.RequiredStatus {
	var out []kommo.RequiredStatus
	for _, rs := range f.RequiredStatuses {
		if IsSystemStageID(rs.StatusID) {
			continue
		}
		slavePipelineID, okP := m.Pipeline(rs.PipelineID)
		slaveStatusID, okS := m.Stage(rs.StatusID)
		if !okP || !okS {
			r.logger.Warn().
				Str("entity", string(entity)).
				Str("field", f.Name).
				Int64("pipeline_id", rs.PipelineID).
				Int64("status_id", rs.StatusID).
				Msg("required status dropped, mapping missing")
			res.Warnings++
			continue
		}
		if !live.has(slavePipelineID, slaveStatusID) {
			r.logger.Warn().
				Str("entity", string(entity)).
				Str("field", f.Name).
				Int64("slave_pipeline_id", slavePipelineID).
				Int64("slave_status_id", slaveStatusID).
				Msg("required status dropped, target missing on slave")
			res.Warnings++
			continue
		}
		out = append(out, kommo.RequiredStatus{PipelineID: slavePipelineID, StatusID: slaveStatusID})
	}
	return out
}

// writeField creates or updates a field. When the API rejects the write
// with a required_statuses validation error, the write is retried once
// without them.
func (r *FieldReplicator) writeField(ctx context.Context, slave API, entity kommo.EntityType, payload kommo.CustomField, existingID *int64, res *PhaseResult) (*kommo.CustomField, error) {
	send := func(p kommo.CustomField) (*kommo.CustomField, error) {
		if existingID != nil {
			return slave.UpdateCustomField(ctx, entity, *existingID, p)
		}
		return slave.CreateCustomField(ctx, entity, p)
	}

	out, err := send(payload)
	if err != nil && len(payload.RequiredStatuses) > 0 && isRequiredStatusRejection(err) {
		r.logger.Warn().
			Str("entity", string(entity)).
			Str("field", payload.Name).
			Msg("field rejected over required_statuses, retrying without them")
		res.Warnings++
		payload.RequiredStatuses = nil
		out, err = send(payload)
	}
	return out, err
}

func isRequiredStatusRejection(err error) bool {
	var te *kommo.TransportError
	if !errors.As(err, &te) || te.Status != 400 {
		return false
	}
	body := strings.ToLower(te.Body)
	return strings.Contains(body, "required_statuses") || strings.Contains(body, "required statuses")
}

// fieldNeedsUpdate reports whether the slave field differs from the
// desired payload. Unchanged fields are skipped so a re-sync against an
// unchanged master performs no writes.
func fieldNeedsUpdate(want, have kommo.CustomField) bool {
	if want.Name != have.Name || want.Sort != have.Sort {
		return true
	}
	if want.GroupID != "" && want.GroupID != have.GroupID {
		return true
	}
	if want.IsRequired != have.IsRequired {
		return true
	}
	if want.Type != TranslateFieldType(have.Type) {
		return true
	}
	if (want.Type == "monetary" || want.Type == "price") && want.Currency != have.Currency {
		return true
	}
	if !enumsEqual(want.Enums, have.Enums) {
		return true
	}
	return !requiredStatusesEqual(want.RequiredStatuses, have.RequiredStatuses)
}

func enumsEqual(want, have []kommo.FieldEnum) bool {
	if len(want) != len(have) {
		return false
	}
	haveSet := make(map[string]int, len(have))
	for _, e := range have {
		haveSet[e.Value] = e.Sort
	}
	for _, e := range want {
		sort, ok := haveSet[e.Value]
		if !ok || sort != e.Sort {
			return false
		}
	}
	return true
}

func requiredStatusesEqual(want, have []kommo.RequiredStatus) bool {
	if len(want) != len(have) {
		return false
	}
	haveSet := make(map[kommo.RequiredStatus]struct{}, len(have))
	for _, rs := range have {
		haveSet[rs] = struct{}{}
	}
	for _, rs := range want {
		if _, ok := haveSet[rs]; !ok {
			return false
		}
	}
	return true
}
