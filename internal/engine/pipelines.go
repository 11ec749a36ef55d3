package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/webwaysys/kommo-sync/internal/kommo"
)

// PipelineReplicator converges a slave's pipelines and stages toward the
// master snapshot and records the ID mappings that the later phases
// translate through.
type PipelineReplicator struct {
	cfg    Config
	logger zerolog.Logger
}

func NewPipelineReplicator(cfg Config, logger zerolog.Logger) *PipelineReplicator {
	return &PipelineReplicator{cfg: cfg, logger: logger.With().Str("phase", "pipelines").Logger()}
}

// Sync reconciles the slave against the snapshot. Pipelines match by name.
// Failure to list the slave's pipelines is fatal; everything else is local
// to the pipeline it happened in.
func (r *PipelineReplicator) Sync(ctx context.Context, slave API, snap *Snapshot, m *Mappings, progress ProgressFunc) (*PhaseResult, error) {
	slavePipelines, err := slave.ListPipelines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slave pipelines: %w", err)
	}
	slaveByName := make(map[string]kommo.Pipeline, len(slavePipelines))
	for _, p := range slavePipelines {
		slaveByName[p.Name] = p
	}

	res := &PhaseResult{}

	batch := RunBatches(ctx, snap.Pipelines, r.cfg.batchSize(), r.cfg.batchDelay(), progress, func(ctx context.Context, ps PipelineSnapshot) error {
		if existing, ok := slaveByName[ps.Pipeline.Name]; ok {
			if err := m.UpsertPipeline(ctx, ps.Pipeline.ID, existing.ID); err != nil {
				return err
			}
			return r.reconcileStages(ctx, slave, ps, existing.ID, m, res)
		}
		return r.createPipeline(ctx, slave, ps, m, res)
	})
	res.Errors = append(res.Errors, batch.Errors...)

	masterNames := make(map[string]struct{}, len(snap.Pipelines))
	for _, ps := range snap.Pipelines {
		masterNames[ps.Pipeline.Name] = struct{}{}
	}
	for _, sp := range slavePipelines {
		if ctx.Err() != nil {
			break
		}
		if _, ok := masterNames[sp.Name]; ok || sp.IsMain {
			continue
		}
		if err := slave.DeletePipeline(ctx, sp.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("failed to delete pipeline %q: %w", sp.Name, err))
			continue
		}
		r.logger.Info().Str("pipeline", sp.Name).Msg("deleted slave pipeline absent from master")
		res.Deleted++
	}

	return res, nil
}

// createPipeline creates the pipeline with its non-system stages embedded.
// The response mirrors the requested statuses in order, so the i-th
// requested stage maps to the i-th non-system status of the response.
func (r *PipelineReplicator) createPipeline(ctx context.Context, slave API, ps PipelineSnapshot, m *Mappings, res *PhaseResult) error {
	masterStages := filterSystemStages(ps.Stages)

	payload := kommo.Pipeline{
		Name:         ps.Pipeline.Name,
		Sort:         ps.Pipeline.Sort,
		IsMain:       ps.Pipeline.IsMain,
		IsUnsortedOn: ps.Pipeline.IsUnsortedOn,
	}
	statuses := make([]kommo.Status, 0, len(masterStages))
	for i, st := range masterStages {
		statuses = append(statuses, kommo.Status{
			Name:  st.Name,
			Sort:  st.Sort,
			Color: NormalizeColor(st.Color, i),
		})
	}
	payload.Embedded = &kommo.PipelineEmbedded{Statuses: statuses}

	created, err := slave.CreatePipeline(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to create pipeline %q: %w", ps.Pipeline.Name, err)
	}
	if err := m.UpsertPipeline(ctx, ps.Pipeline.ID, created.ID); err != nil {
		return err
	}
	res.Created++

	createdStages := filterSystemStages(created.Statuses())
	for i, st := range masterStages {
		if i >= len(createdStages) {
			r.logger.Warn().
				Str("pipeline", ps.Pipeline.Name).
				Str("stage", st.Name).
				Msg("create response carried fewer statuses than requested, stage left unmapped")
			res.Warnings++
			continue
		}
		if err := m.UpsertStage(ctx, st.ID, createdStages[i].ID); err != nil {
			res.Errors = append(res.Errors, err)
		}
	}
	r.logger.Info().Str("pipeline", ps.Pipeline.Name).Int("stages", len(masterStages)).Msg("created pipeline on slave")
	return nil
}

// reconcileStages converges the stages of a pipeline that already exists on
// the slave. Stage-level failures are recorded and do not abort the
// pipeline.
func (r *PipelineReplicator) reconcileStages(ctx context.Context, slave API, ps PipelineSnapshot, slavePipelineID int64, m *Mappings, res *PhaseResult) error {
	slaveStages, err := slave.ListStatuses(ctx, slavePipelineID)
	if err != nil {
		return fmt.Errorf("failed to list stages of slave pipeline %d: %w", slavePipelineID, err)
	}

	masterStages := filterSystemStages(ps.Stages)
	slaveNonSystem := filterSystemStages(slaveStages)
	slaveStageByName := make(map[string]kommo.Status, len(slaveNonSystem))
	for _, st := range slaveNonSystem {
		slaveStageByName[st.Name] = st
	}

	for i, st := range masterStages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		existing, ok := slaveStageByName[st.Name]
		if !ok {
			created, err := slave.CreateStatus(ctx, slavePipelineID, kommo.Status{
				Name:  st.Name,
				Sort:  st.Sort,
				Color: NormalizeColor(st.Color, i),
			})
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("failed to create stage %q: %w", st.Name, err))
				continue
			}
			if err := m.UpsertStage(ctx, st.ID, created.ID); err != nil {
				res.Errors = append(res.Errors, err)
				continue
			}
			res.Created++
			continue
		}

		if err := m.UpsertStage(ctx, st.ID, existing.ID); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if r.cfg.UpdateExistingStages {
			// The PATCH body always carries name; sending it empty would
			// blank the stage name on the slave.
			_, err := slave.UpdateStatus(ctx, slavePipelineID, existing.ID, kommo.Status{
				Name:  st.Name,
				Sort:  st.Sort,
				Color: NormalizeColor(st.Color, i),
			})
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("failed to update stage %q: %w", st.Name, err))
				continue
			}
			res.Updated++
		}
	}

	masterStageNames := make(map[string]struct{}, len(masterStages))
	for _, st := range masterStages {
		masterStageNames[st.Name] = struct{}{}
	}
	for _, st := range slaveNonSystem {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := masterStageNames[st.Name]; ok {
			continue
		}
		if err := slave.DeleteStatus(ctx, slavePipelineID, st.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("failed to delete stage %q: %w", st.Name, err))
			continue
		}
		res.Deleted++
	}
	return nil
}

// filterSystemStages drops vendor-managed stages, preserving order.
func filterSystemStages(stages []kommo.Status) []kommo.Status {
	out := make([]kommo.Status, 0, len(stages))
	for _, st := range stages {
		if IsSystemStage(st) {
			continue
		}
		out = append(out, st)
	}
	return out
}
