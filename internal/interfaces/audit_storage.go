package interfaces

import (
	"context"

	"github.com/ternarybob/petitor/internal/models"
)

// AuditStorage persists security-audit events emitted by job handlers
type AuditStorage interface {
	Record(ctx context.Context, event *models.AuditEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.AuditEvent, error)
}
