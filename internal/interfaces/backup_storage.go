package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/petitor/internal/models"
)

// BackupStorage persists backup records with retention metadata
type BackupStorage interface {
	Save(ctx context.Context, record *models.BackupRecord) error
	Get(ctx context.Context, backupID string) (*models.BackupRecord, error)
	List(ctx context.Context, backupType models.BackupType) ([]models.BackupRecord, error)
	Delete(ctx context.Context, backupID string) error
	// ListOlderThan returns records of the given type whose timestamp
	// precedes cutoff. Used by the retention sweep.
	ListOlderThan(ctx context.Context, backupType models.BackupType, cutoff time.Time) ([]models.BackupRecord, error)
}
