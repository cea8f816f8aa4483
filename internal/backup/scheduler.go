package backup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
)

// Scheduler drives the backup manager on cron schedules. A run that
// fails logs and records its failure; the schedule keeps going.
type Scheduler struct {
	manager *Manager
	config  *common.BackupConfig
	logger  arbor.ILogger
	cron    *cron.Cron
}

// NewScheduler creates the backup scheduler
func NewScheduler(manager *Manager, config *common.BackupConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		manager: manager,
		config:  config,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers all schedules and starts the cron loop
func (s *Scheduler) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup scheduler disabled")
		return nil
	}

	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"database", s.config.DatabaseSchedule, func(ctx context.Context) error {
			_, err := s.manager.BackupDatabase(ctx)
			return err
		}},
		{"files", s.config.FilesSchedule, func(ctx context.Context) error {
			_, err := s.manager.BackupFiles(ctx)
			return err
		}},
		{"logs", s.config.LogsSchedule, func(ctx context.Context) error {
			_, err := s.manager.BackupLogs(ctx)
			return err
		}},
		{"retention", s.config.RetentionSchedule, s.manager.RetentionSweep},
	}

	for _, entry := range entries {
		name, run := entry.name, entry.run
		if _, err := s.cron.AddFunc(entry.spec, func() {
			if err := run(context.Background()); err != nil {
				s.logger.Error().Err(err).Str("backup", name).Msg("Scheduled backup run failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid %s backup schedule %q: %w", name, entry.spec, err)
		}
		s.logger.Debug().Str("backup", name).Str("schedule", entry.spec).Msg("Backup schedule registered")
	}

	s.cron.Start()
	s.logger.Info().Msg("Backup scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Backup scheduler stopped")
}
