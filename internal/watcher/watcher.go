package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/webwaysys/kommo-sync/internal/config"
	"github.com/webwaysys/kommo-sync/internal/models"
)

const (
	jobBatchLimit = 5
	stuckJobAge   = 30 * time.Minute
)

// SyncJobSource feeds the watcher queued sync requests.
type SyncJobSource interface {
	GetPendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	GetStuckJobs(ctx context.Context, maxAge time.Duration, limit int) ([]models.SyncJob, error)
	UpdateStatus(ctx context.Context, jobID int64, status models.SyncJobStatus, lastError *string) error
}

// SyncGroupSource resolves the group a job targets.
type SyncGroupSource interface {
	GetByID(ctx context.Context, groupID int64) (*models.SyncGroup, error)
}

// Runner executes one sync run. Implemented by engine.Orchestrator.
type Runner interface {
	Run(ctx context.Context, group models.SyncGroup, syncType models.SyncType) error
}

// Watcher polls the sync_jobs table and drives the engine. Jobs run one at
// a time; the remote rate limits leave nothing to gain from parallelism.
type Watcher struct {
	cfg    *config.Config
	jobs   SyncJobSource
	groups SyncGroupSource
	runner Runner
	logger zerolog.Logger
}

func New(cfg *config.Config, jobs SyncJobSource, groups SyncGroupSource, runner Runner, logger zerolog.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		jobs:   jobs,
		groups: groups,
		runner: runner,
		logger: logger.With().Str("component", "watcher").Logger(),
	}
}

// Start begins polling for sync jobs and blocks until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("starting sync job watcher")

	// Pick up jobs left over from previous runs before the first tick.
	if err := w.processJobs(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("failed to process jobs on startup")
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processJobs(ctx); err != nil {
				w.logger.Error().Err(err).Msg("failed to process jobs")
			}
		}
	}
}

func (w *Watcher) processJobs(ctx context.Context) error {
	pending, err := w.jobs.GetPendingJobs(ctx, jobBatchLimit)
	if err != nil {
		return err
	}
	stuck, err := w.jobs.GetStuckJobs(ctx, stuckJobAge, jobBatchLimit)
	if err != nil {
		return err
	}
	jobs := append(pending, stuck...)
	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info().Int("count", len(jobs)).Msg("found sync jobs to process")
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.processJob(ctx, job)
	}
	return nil
}

func (w *Watcher) processJob(ctx context.Context, job models.SyncJob) {
	logger := w.logger.With().Int64("job_id", job.ID).Int64("group_id", job.SyncGroupID).Logger()

	if err := w.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing, nil); err != nil {
		logger.Error().Err(err).Msg("failed to mark job processing")
		return
	}

	group, err := w.groups.GetByID(ctx, job.SyncGroupID)
	if err != nil {
		w.failJob(ctx, logger, job.ID, err)
		return
	}
	if !group.IsActive {
		msg := "sync group is inactive"
		if err := w.jobs.UpdateStatus(ctx, job.ID, models.JobFailed, &msg); err != nil {
			logger.Error().Err(err).Msg("failed to mark job failed")
		}
		return
	}

	syncType := job.SyncType
	if syncType == "" {
		syncType = models.SyncTypeFull
	}

	if err := w.runner.Run(ctx, *group, syncType); err != nil {
		w.failJob(ctx, logger, job.ID, err)
		return
	}
	if err := w.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted, nil); err != nil {
		logger.Error().Err(err).Msg("failed to mark job completed")
		return
	}
	logger.Info().Str("sync_type", string(syncType)).Msg("sync job completed")
}

func (w *Watcher) failJob(ctx context.Context, logger zerolog.Logger, jobID int64, cause error) {
	logger.Error().Err(cause).Msg("sync job failed")
	msg := cause.Error()
	if err := w.jobs.UpdateStatus(ctx, jobID, models.JobFailed, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to mark job failed")
	}
}
