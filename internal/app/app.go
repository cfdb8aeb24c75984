// Package app wires the application components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/api"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/cache"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/ledger"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/messaging"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/normalize"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/reconcile"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/updater"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
)

// App represents the main application.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Infrastructure
	mysqlDB    *database.MySQLClient
	redisCache *cache.RedisClient
	taskClient *messaging.TaskClient

	// Pipeline
	fetcher    *provider.Fetcher
	normalizer *normalize.Normalizer
	reconciler *reconcile.Reconciler
	runLedger  *ledger.Ledger
	updateSvc  *updater.Service
	worker     *updater.Worker
	scheduler  *updater.Scheduler

	apiServer *api.Server
}

// New creates a new application instance.
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize connects infrastructure and builds the ingestion pipeline.
func (a *App) Initialize() error {
	var err error

	a.mysqlDB, err = database.NewMySQLClient(&a.cfg.MySQL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	a.redisCache, err = cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	a.taskClient, err = messaging.NewTaskClient(&a.cfg.NATS, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize NATS: %w", err)
	}

	a.fetcher = provider.NewFetcher(&a.cfg.Providers, a.logger)
	a.normalizer = normalize.New(a.logger)
	a.reconciler = reconcile.New(a.mysqlDB, a.cfg.Updater.InsertBatchSize, a.logger)
	a.runLedger = ledger.New(a.mysqlDB, a.logger)
	a.updateSvc = updater.NewService(
		a.fetcher, a.normalizer, a.reconciler, a.runLedger,
		a.mysqlDB, a.redisCache, a.cfg.Updater.Concurrency, a.logger,
	)
	a.worker = updater.NewWorker(a.updateSvc, a.mysqlDB, a.logger)

	if a.cfg.Updater.ScheduleEnabled {
		opts := provider.FetchOptions{OutputSize: a.cfg.Updater.OutputSize}
		a.scheduler = updater.NewScheduler(a.taskClient, a.cfg.Updater.Schedule, opts, a.logger)
	}

	a.apiServer = api.NewServer(a.cfg, a.mysqlDB, a.redisCache, a.taskClient, a.logger)

	return nil
}

// Start begins task consumption, scheduling and the HTTP server.
func (a *App) Start() error {
	a.warnAboutStuckRuns()

	if err := a.taskClient.SubscribeUpdateTasks(a.worker.Handle); err != nil {
		return fmt.Errorf("failed to subscribe to update tasks: %w", err)
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server stopped")
			a.cancel()
		}
	}()

	a.logger.Info("Application started")
	return nil
}

// warnAboutStuckRuns surfaces runs left in RUNNING by a previous process
// that died mid-task. They need manual inspection; the ledger never
// transitions them automatically.
func (a *App) warnAboutStuckRuns() {
	runs, err := a.mysqlDB.GetStuckRuns(a.ctx, time.Hour)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to check for stuck update runs")
		return
	}
	for _, run := range runs {
		a.logger.WithFields(logrus.Fields{
			"run_id":     run.ID,
			"started_at": run.StartedAt,
		}).Warn("Update run stuck in RUNNING state")
	}
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	<-a.ctx.Done()
}

// Stop gracefully shuts everything down in reverse dependency order.
func (a *App) Stop() {
	a.logger.Info("Shutting down application")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.apiServer.Stop(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("HTTP server shutdown failed")
	}

	if err := a.taskClient.Close(); err != nil {
		a.logger.WithError(err).Warn("NATS shutdown failed")
	}
	if err := a.redisCache.Close(); err != nil {
		a.logger.WithError(err).Warn("Redis shutdown failed")
	}
	if err := a.mysqlDB.Close(); err != nil {
		a.logger.WithError(err).Warn("MySQL shutdown failed")
	}

	a.cancel()
	a.wg.Wait()
	a.logger.Info("Application stopped")
}
