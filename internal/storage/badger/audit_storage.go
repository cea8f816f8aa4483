package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuditStorage implements the AuditStorage interface for Badger
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

// Record persists a security-audit event
func (s *AuditStorage) Record(ctx context.Context, event *models.AuditEvent) error {
	if event.EventID == "" {
		event.EventID = "aud_" + uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(event.EventID, event); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListByUser returns the most recent audit events for a user
func (s *AuditStorage) ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	query := badgerhold.Where("UserID").Eq(userID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}
