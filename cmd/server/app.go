package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskquota/internal/config"
	"github.com/phrazzld/taskquota/internal/events"
	"github.com/phrazzld/taskquota/internal/job"
	"github.com/phrazzld/taskquota/internal/platform/postgres"
	"github.com/phrazzld/taskquota/internal/service"
	"github.com/phrazzld/taskquota/internal/store"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	// Stores
	userStore       store.UserStore
	membershipStore store.MembershipStore
	taskStore       store.TaskStore
	assignmentStore store.AssignmentStore
	accountStore    store.AccountStore
	jobStore        job.Store

	// Services
	resolver     service.EligibilityResolver
	engine       service.DistributionEngine
	sweeper      service.ResetSweeper
	settlement   service.SettlementService
	catalog      service.CatalogService
	registration service.RegistrationService

	// Event system
	eventEmitter *events.InMemoryEventEmitter
	dispatcher   *events.AsyncDispatcher

	// Background work
	jobRunner *job.Runner
	scheduler *job.Scheduler

	cancelBackground context.CancelFunc
}

// newApplication creates a new application instance with all dependencies initialized.
// It accepts core dependencies like configuration, logger, and database connection that
// must be established before application initialization. Nothing is started yet.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	loc, err := cfg.Distribution.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load distribution timezone: %w", err)
	}
	direct, indirect, err := cfg.Settlement.Bonuses()
	if err != nil {
		return nil, fmt.Errorf("failed to parse referral bonuses: %w", err)
	}
	bonuses := service.ReferralBonuses{Direct: direct, Indirect: indirect}

	// Stores
	app.userStore = postgres.NewPostgresUserStore(db, logger)
	app.membershipStore = postgres.NewPostgresMembershipStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.assignmentStore = postgres.NewPostgresAssignmentStore(db, logger)
	app.accountStore = postgres.NewPostgresAccountStore(db, logger)
	app.jobStore = postgres.NewPostgresJobStore(db, logger)
	tx := store.NewSQLTransactor(db)

	// Events are delivered off the request path. Handlers are registered
	// below once the job runner exists.
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.dispatcher = events.NewAsyncDispatcher(app.eventEmitter, cfg.Jobs.EventBufferSize, logger)

	// Services
	if app.resolver, err = service.NewEligibilityResolver(
		app.membershipStore, app.assignmentStore, loc, nil, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create eligibility resolver: %w", err)
	}
	if app.engine, err = service.NewDistributionEngine(
		tx, app.membershipStore, app.taskStore, app.assignmentStore, app.resolver,
		service.DistributionOptions{
			Location:       loc,
			Concurrency:    cfg.Distribution.Concurrency,
			MaxClaimRounds: cfg.Distribution.MaxClaimRounds,
		},
		logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create distribution engine: %w", err)
	}
	if app.sweeper, err = service.NewResetSweeper(
		tx, app.membershipStore, app.assignmentStore, loc, nil, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create reset sweeper: %w", err)
	}
	if app.settlement, err = service.NewSettlementService(
		tx, app.userStore, app.membershipStore, app.taskStore, app.assignmentStore, app.accountStore,
		bonuses, app.dispatcher, nil, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create settlement service: %w", err)
	}
	if app.catalog, err = service.NewCatalogService(
		tx, app.userStore, app.membershipStore, app.taskStore, nil, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create catalog service: %w", err)
	}
	if app.registration, err = service.NewRegistrationService(
		tx, app.userStore, app.membershipStore, app.accountStore, bonuses, app.dispatcher, nil, logger,
	); err != nil {
		return nil, fmt.Errorf("failed to create registration service: %w", err)
	}

	// Job runner: a registered user gets the first day's tasks in the background.
	factory := job.NewAssignUserTasksFactory(app.engine, logger)
	registry := job.NewRegistry()
	registry.Register(job.TypeAssignUserTasks, factory.Rehydrate)
	app.jobRunner = job.NewRunner(app.jobStore, registry, job.RunnerConfig{
		WorkerCount:     cfg.Jobs.WorkerCount,
		QueueSize:       cfg.Jobs.QueueSize,
		StuckJobAge:     cfg.Jobs.StuckJobAge,
		MonitorInterval: cfg.Jobs.MonitorInterval,
	}, logger)
	app.eventEmitter.RegisterHandler(
		job.NewFactoryEventHandler(factory, app.jobRunner, logger),
		events.TypeUserRegistered,
	)

	if cfg.Scheduler.Enabled {
		if app.scheduler, err = job.NewScheduler(app.sweeper, app.engine, loc, cfg.Scheduler.RunAt, nil, logger); err != nil {
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	logger.Info("Application initialized successfully",
		slog.String("timezone", loc.String()),
		slog.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
		slog.Bool("redis_enabled", cfg.Redis.Addr != ""))
	return app, nil
}

// connectRedis attaches the Redis publisher when an address is configured.
// Every event is published, whatever its type.
func (app *application) connectRedis(ctx context.Context) error {
	if app.config.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.config.Redis.Addr,
		Password: app.config.Redis.Password,
		DB:       app.config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redis = client
	app.eventEmitter.RegisterHandler(events.NewRedisPublisher(client, app.config.Redis.Channel, app.logger))
	app.logger.Info("Redis event publisher connected", slog.String("channel", app.config.Redis.Channel))
	return nil
}

// startBackground starts event delivery, the job runner and, when enabled,
// the daily scheduler.
func (app *application) startBackground(ctx context.Context) error {
	ctx, app.cancelBackground = context.WithCancel(ctx)

	app.dispatcher.Start()
	if err := app.jobRunner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}

	if app.scheduler != nil {
		go func() {
			if err := app.scheduler.Run(ctx); err != nil {
				app.logger.Error("scheduler stopped", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

// Run starts the background workers and the HTTP server, and blocks until
// ctx is canceled or the server fails.
func (app *application) Run(ctx context.Context) error {
	if err := app.connectRedis(ctx); err != nil {
		return err
	}
	if err := app.startBackground(ctx); err != nil {
		return err
	}
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
// Events still buffered are delivered before the job runner stops, so jobs
// submitted by them are persisted and recovered on the next start.
func (app *application) cleanup() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.dispatcher.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		app.logger.Error("Error stopping event dispatcher", "error", err)
	}
	if app.cancelBackground != nil {
		app.cancelBackground()
	}
	if app.jobRunner != nil {
		app.jobRunner.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
