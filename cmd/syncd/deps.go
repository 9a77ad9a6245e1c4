package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledgersync/internal/app"
	"ledgersync/internal/interfaces/scheduler"
	"ledgersync/internal/shared/auth"
	"ledgersync/internal/shared/config"
	"ledgersync/internal/shared/telemetry"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Store  *app.Store
	Syncer *app.Syncer

	Pool      *scheduler.WorkerPool
	Scheduler *scheduler.Scheduler // nil when SCHEDULER_ENABLED=false
	Tokens    *auth.ServiceTokens  // nil when TRIGGER_TOKEN_SECRET is unset

	shutdownTelemetry func(context.Context) error
	logger            *zap.Logger
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, logger)
		d.shutdownTelemetry = shutdown
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to init telemetry: %w", err)
		}
	}

	store, err := app.OpenStore(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store
	logger.Info("Connected to database")

	d.Syncer, err = app.NewSyncer(ctx, cfg, store, logger)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Pool = scheduler.NewWorkerPool(scheduler.PoolConfig{
		Workers:   cfg.Scheduler.WorkerCount,
		JobDelay:  cfg.Scheduler.JobDelay,
		QueueSize: cfg.Scheduler.QueueSize,
	}, logger)
	d.Pool.Start()

	if cfg.Scheduler.Enabled {
		d.Scheduler, err = scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
		}, d.Pool, scheduler.ActiveConnectionJobs(store.Connections, d.Syncer.Orchestrator, logger), logger)
		if err != nil {
			d.Close()
			return nil, err
		}
	} else {
		logger.Info("Scheduler is disabled")
	}

	if cfg.Trigger.TokenSecret != "" {
		d.Tokens, err = auth.NewServiceTokens(cfg.Trigger.TokenSecret)
		if err != nil {
			d.Close()
			return nil, err
		}
	} else {
		logger.Warn("TRIGGER_TOKEN_SECRET is not set, manual sync endpoint is disabled")
	}

	return d, nil
}

// Close releases the database and flushes telemetry. Safe on a partially
// built Dependencies.
func (d *Dependencies) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.logger.Warn("Error closing database", zap.Error(err))
		}
	}
	if d.shutdownTelemetry != nil {
		if err := d.shutdownTelemetry(context.Background()); err != nil {
			d.logger.Warn("Error shutting down telemetry", zap.Error(err))
		}
	}
}
