package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/webwaysys/kommo-sync/internal/config"
	"github.com/webwaysys/kommo-sync/internal/database"
	"github.com/webwaysys/kommo-sync/internal/engine"
	"github.com/webwaysys/kommo-sync/internal/kommo"
	"github.com/webwaysys/kommo-sync/internal/models"
	"github.com/webwaysys/kommo-sync/internal/repository"
	"github.com/webwaysys/kommo-sync/internal/watcher"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("application error")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}()

	logger.Info().Msg("database connected")

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")

	accountRepo := repository.NewAccountRepository(db)
	groupRepo := repository.NewSyncGroupRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	syncJobRepo := repository.NewSyncJobRepository(db)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	newClient := func(account models.Account) engine.API {
		tokens := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: account.BearerToken,
			TokenType:   "Bearer",
		})
		return kommo.NewClient(account.Subdomain, tokens,
			kommo.WithHTTPClient(httpClient),
			kommo.WithRateLimit(cfg.APIRateLimitRPS),
			kommo.WithLogger(logger),
		)
	}

	engineCfg := engine.Config{
		BatchSize:            cfg.BatchSize,
		BatchDelay:           cfg.BatchDelay,
		DefaultCurrency:      cfg.DefaultCurrency,
		UpdateExistingStages: cfg.UpdateExistingStages,
		DeleteExtraRoles:     cfg.DeleteExtraRoles,
	}
	orchestrator := engine.NewOrchestrator(engineCfg, accountRepo, mappingRepo, syncLogRepo, newClient, logger)

	w := watcher.New(cfg, syncJobRepo, groupRepo, orchestrator, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info().Msg("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn().Msg("shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				logger.Error().Err(err).Msg("watcher error")
			}
		}

		logger.Info().Msg("application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
