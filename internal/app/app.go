package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/backup"
	"github.com/ternarybob/petitor/internal/browser"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/formfill"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/jobs"
	"github.com/ternarybob/petitor/internal/queue"
	"github.com/ternarybob/petitor/internal/quota"
	"github.com/ternarybob/petitor/internal/ratelimit"
	"github.com/ternarybob/petitor/internal/services/discovery"
	"github.com/ternarybob/petitor/internal/services/llm"
	"github.com/ternarybob/petitor/internal/services/mimikree"
	"github.com/ternarybob/petitor/internal/services/projects"
	"github.com/ternarybob/petitor/internal/services/tailor"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

// App wires the orchestration core: storage, limits, quota, browser
// pool, fill pipeline, services, queue, workers, and backups.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB       *badgerstore.BadgerDB
	KV       interfaces.KeyValueStorage
	Patterns interfaces.PatternStorage
	Audit    interfaces.AuditStorage
	Backups  interfaces.BackupStorage

	Limiter  *ratelimit.Limiter
	Quota    *quota.Manager
	LLM      interfaces.LLMProvider
	Browsers *browser.Pool

	QueueMgr *queue.Manager
	Workers  *queue.WorkerPool

	BackupMgr       *backup.Manager
	BackupScheduler *backup.Scheduler
}

// New builds the application from configuration. Nothing starts running
// until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.KV = badgerstore.NewKVStorage(db, logger)
	a.Patterns = badgerstore.NewPatternStorage(db, logger)
	a.Audit = badgerstore.NewAuditStorage(db, logger)
	a.Backups = badgerstore.NewBackupStorage(db, logger)

	a.Limiter = ratelimit.NewLimiter(a.KV, ratelimit.DefaultLimits(&cfg.RateLimits), logger)
	a.Quota = quota.NewManager(a.KV, &cfg.RateLimits, logger)

	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	a.LLM = provider

	pool, err := browser.NewPool(cfg.Browser, cfg.Storage.Filesystem.Sessions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser pool: %w", err)
	}
	a.Browsers = pool

	a.QueueMgr = queue.NewManager(db, a.KV, cfg.Queue.MaxConcurrentPerUser, logger)
	a.Workers = queue.NewWorkerPool(a.QueueMgr, queue.WorkerPoolConfig{
		Workers:            cfg.Queue.MaxWorkers,
		PollInterval:       common.ParseDuration(cfg.Queue.PollInterval, time.Second),
		TailoringTimeout:   common.ParseDuration(cfg.Queue.TailoringTimeout, 10*time.Minute),
		ApplicationTimeout: common.ParseDuration(cfg.Queue.ApplicationTimeout, 30*time.Minute),
		SearchTimeout:      common.ParseDuration(cfg.Queue.SearchTimeout, 5*time.Minute),
	}, logger)

	// Fill pipeline
	detector := formfill.NewDetector(logger)
	det := formfill.NewDeterministicMapper(logger)
	learned := formfill.NewLearnedMapper(a.Patterns, logger)
	ai := formfill.NewAIMapper(a.LLM, logger)
	drivers := formfill.NewDropdownDrivers(logger)
	interactor := formfill.NewInteractor(drivers, cfg.Storage.Filesystem.Resumes, logger)
	uploader := formfill.NewUploader(a.LLM, logger)
	orchestrator := formfill.NewOrchestrator(detector, det, learned, ai, interactor, uploader, logger)

	// Services
	tailorSvc, err := tailor.NewService(&cfg.Tailor, a.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tailoring service: %w", err)
	}
	discoverySvc := discovery.NewService(&cfg.Discovery, logger)
	mimikreeClient := mimikree.NewClient(&cfg.Mimikree, logger)
	projectsSvc := projects.NewService(mimikreeClient, logger)

	handlers := jobs.NewHandlers(
		a.Limiter, a.Quota, a.Audit, a.KV, a.QueueMgr, a.Browsers,
		orchestrator, tailorSvc, discoverySvc, projectsSvc, logger,
	)
	handlers.RegisterAll(a.Workers)

	// Backups
	var remote backup.ObjectStore
	if cfg.Backup.RemoteDir != "" {
		remote, err = backup.NewFilesystemStore(cfg.Backup.RemoteDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote backup store: %w", err)
		}
	}
	backupMgr, err := backup.NewManager(db, a.Backups, &cfg.Backup, remote, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
	}
	a.BackupMgr = backupMgr
	a.BackupScheduler = backup.NewScheduler(backupMgr, &cfg.Backup, logger)

	return a, nil
}

// Start launches the worker pool and backup scheduler
func (a *App) Start() error {
	if err := a.Workers.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.BackupScheduler.Start(); err != nil {
		return fmt.Errorf("failed to start backup scheduler: %w", err)
	}
	a.Logger.Info().Msg("Application started")
	return nil
}

// Close shuts everything down in dependency order: stop accepting work,
// drain workers, close browsers, stop schedules, close storage.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Workers != nil {
		if err := a.Workers.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
		}
	}
	if a.BackupScheduler != nil {
		a.BackupScheduler.Stop()
	}
	if a.Browsers != nil {
		if err := a.Browsers.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Database close failed")
			return err
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
