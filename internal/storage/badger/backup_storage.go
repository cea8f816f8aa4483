package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BackupStorage implements the BackupStorage interface for Badger
type BackupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBackupStorage creates a new BackupStorage instance
func NewBackupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BackupStorage {
	return &BackupStorage{
		db:     db,
		logger: logger,
	}
}

// Save persists a backup record
func (s *BackupStorage) Save(ctx context.Context, record *models.BackupRecord) error {
	if record.BackupID == "" {
		return fmt.Errorf("backup ID is required")
	}
	if err := s.db.Store().Upsert(record.BackupID, record); err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

// Get retrieves a backup record by ID
func (s *BackupStorage) Get(ctx context.Context, backupID string) (*models.BackupRecord, error) {
	var record models.BackupRecord
	err := s.db.Store().Get(backupID, &record)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("backup not found: %s", backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup record: %w", err)
	}
	return &record, nil
}

// List returns all records of a backup type, newest first
func (s *BackupStorage) List(ctx context.Context, backupType models.BackupType) ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	query := badgerhold.Where("Type").Eq(backupType).SortBy("Timestamp").Reverse()
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list backup records: %w", err)
	}
	return records, nil
}

// Delete removes a backup record
func (s *BackupStorage) Delete(ctx context.Context, backupID string) error {
	err := s.db.Store().Delete(backupID, &models.BackupRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

// ListOlderThan returns records of the given type older than cutoff
func (s *BackupStorage) ListOlderThan(ctx context.Context, backupType models.BackupType, cutoff time.Time) ([]models.BackupRecord, error) {
	var records []models.BackupRecord
	query := badgerhold.Where("Type").Eq(backupType).And("Timestamp").Lt(cutoff)
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list expired backup records: %w", err)
	}
	return records, nil
}
