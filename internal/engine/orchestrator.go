package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webwaysys/kommo-sync/internal/models"
)

// AccountStore resolves the accounts of a sync group.
type AccountStore interface {
	GetMaster(ctx context.Context, groupID int64) (*models.Account, error)
	GetSlaves(ctx context.Context, groupID int64) ([]models.Account, error)
}

// SyncLogStore records sync runs. Logs are append-only: Finish sets the
// terminal status once and the row is never touched again.
type SyncLogStore interface {
	Create(ctx context.Context, log *models.SyncLog) error
	Finish(ctx context.Context, id int64, status models.SyncLogStatus, message string, processed, failed int) error
}

// ClientFactory builds an API client for one tenant account.
type ClientFactory func(account models.Account) API

// Orchestrator runs a sync for one group: extract the master schema once,
// then converge each slave sequentially. The per-tenant rate limit makes
// within-slave parallelism a non-starter, and sequential slaves are the
// safe default across them too.
type Orchestrator struct {
	cfg       Config
	accounts  AccountStore
	mappings  MappingStore
	logs      SyncLogStore
	newClient ClientFactory
	pipelines *PipelineReplicator
	fields    *FieldReplicator
	roles     *RoleReplicator
	logger    zerolog.Logger
}

func NewOrchestrator(cfg Config, accounts AccountStore, mappings MappingStore, logs SyncLogStore, newClient ClientFactory, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		accounts:  accounts,
		mappings:  mappings,
		logs:      logs,
		newClient: newClient,
		pipelines: NewPipelineReplicator(cfg, logger),
		fields:    NewFieldReplicator(cfg, logger),
		roles:     NewRoleReplicator(cfg, logger),
		logger:    logger,
	}
}

// Run performs one sync of the given type over every slave of the group.
// Extraction failures and account lookup failures are fatal; per-slave
// failures are counted and the remaining slaves still run.
func (o *Orchestrator) Run(ctx context.Context, group models.SyncGroup, syncType models.SyncType) error {
	runID := uuid.NewString()
	logger := o.logger.With().
		Str("run_id", runID).
		Int64("group_id", group.ID).
		Str("sync_type", string(syncType)).
		Logger()

	syncLog := &models.SyncLog{
		SyncGroupID: group.ID,
		SyncType:    string(syncType),
		Status:      models.SyncLogStarted,
		StartedAt:   time.Now(),
	}
	if err := o.logs.Create(ctx, syncLog); err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	fail := func(err error) error {
		if finishErr := o.logs.Finish(ctx, syncLog.ID, models.SyncLogFailed, err.Error(), 0, 0); finishErr != nil {
			logger.Error().Err(finishErr).Msg("failed to finalize sync log")
		}
		return err
	}

	master, err := o.accounts.GetMaster(ctx, group.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve master account: %w", err))
	}
	slaves, err := o.accounts.GetSlaves(ctx, group.ID)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve slave accounts: %w", err))
	}

	logger.Info().Str("master", master.Subdomain).Int("slaves", len(slaves)).Msg("starting sync run")

	snap, err := Extract(ctx, o.newClient(*master))
	if err != nil {
		return fail(fmt.Errorf("failed to extract master schema: %w", err))
	}

	processed, failed := 0, 0
	var total PhaseResult
	for _, slave := range slaves {
		if ctx.Err() != nil {
			break
		}
		res, err := o.syncSlave(ctx, logger, group, slave, snap, syncType)
		if res != nil {
			total.Add(res)
		}
		if err != nil {
			logger.Error().Err(err).Str("slave", slave.Subdomain).Msg("slave sync failed")
			failed++
			continue
		}
		processed++
	}

	status := models.SyncLogCompleted
	if failed > 0 && processed == 0 {
		status = models.SyncLogFailed
	}
	message := fmt.Sprintf("created=%d updated=%d deleted=%d warnings=%d errors=%d",
		total.Created, total.Updated, total.Deleted, total.Warnings, len(total.Errors))
	if err := o.logs.Finish(ctx, syncLog.ID, status, message, processed, failed); err != nil {
		logger.Error().Err(err).Msg("failed to finalize sync log")
	}

	logger.Info().
		Int("processed", processed).
		Int("failed", failed).
		Str("summary", message).
		Msg("sync run finished")

	if status == models.SyncLogFailed {
		return fmt.Errorf("sync failed for all %d slave(s)", failed)
	}
	return nil
}

// syncSlave runs the selected phases against one slave. Pipelines always
// precede fields, and fields precede roles, so every cross-reference the
// later phases translate is already mapped.
func (o *Orchestrator) syncSlave(ctx context.Context, logger zerolog.Logger, group models.SyncGroup, slave models.Account, snap *Snapshot, syncType models.SyncType) (*PhaseResult, error) {
	slog := logger.With().Str("slave", slave.Subdomain).Logger()
	client := o.newClient(slave)

	if _, err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("slave unreachable: %w", err)
	}

	m := NewMappings(o.mappings, group.ID, slave.ID)
	if err := m.Load(ctx); err != nil {
		return nil, err
	}

	total := &PhaseResult{}
	progress := func(done, total int) {
		slog.Debug().Int("done", done).Int("total", total).Msg("progress")
	}

	runPhase := func(name string, sync func(context.Context, API, *Snapshot, *Mappings, ProgressFunc) (*PhaseResult, error)) error {
		res, err := sync(ctx, client, snap, m, progress)
		if err != nil {
			return fmt.Errorf("%s phase failed: %w", name, err)
		}
		total.Add(res)
		slog.Info().
			Str("phase", name).
			Int("created", res.Created).
			Int("updated", res.Updated).
			Int("deleted", res.Deleted).
			Int("warnings", res.Warnings).
			Int("errors", len(res.Errors)).
			Msg("phase finished")
		for _, e := range res.Errors {
			slog.Warn().Err(e).Str("phase", name).Msg("item failed")
		}
		return nil
	}

	if syncType == models.SyncTypeFull || syncType == models.SyncTypePipelines {
		if err := runPhase("pipelines", o.pipelines.Sync); err != nil {
			return total, err
		}
	}
	if syncType == models.SyncTypeFull || syncType == models.SyncTypeFields {
		if err := runPhase("fields", o.fields.Sync); err != nil {
			return total, err
		}
	}
	if syncType == models.SyncTypeFull || syncType == models.SyncTypeRoles {
		if err := runPhase("roles", o.roles.Sync); err != nil {
			return total, err
		}
	}
	return total, nil
}
