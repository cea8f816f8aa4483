package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/browser"
	"github.com/ternarybob/petitor/internal/formfill"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/queue"
	"github.com/ternarybob/petitor/internal/quota"
	"github.com/ternarybob/petitor/internal/ratelimit"
	"github.com/ternarybob/petitor/internal/services/discovery"
	"github.com/ternarybob/petitor/internal/services/projects"
	"github.com/ternarybob/petitor/internal/services/tailor"
)

// profileKeyPrefix is where user profiles live in the KV store
const profileKeyPrefix = "profile:"

// Handlers bundles every job handler's dependencies and registers them
// with the worker pool.
type Handlers struct {
	limiter   *ratelimit.Limiter
	quota     *quota.Manager
	audit     interfaces.AuditStorage
	kv        interfaces.KeyValueStorage
	queueMgr  *queue.Manager
	browsers  *browser.Pool
	fill      *formfill.Orchestrator
	tailor    *tailor.Service
	discovery *discovery.Service
	projects  *projects.Service
	logger    arbor.ILogger
	validate  *validator.Validate
}

// NewHandlers creates the handler set
func NewHandlers(
	limiter *ratelimit.Limiter,
	quotaMgr *quota.Manager,
	audit interfaces.AuditStorage,
	kv interfaces.KeyValueStorage,
	queueMgr *queue.Manager,
	browsers *browser.Pool,
	fill *formfill.Orchestrator,
	tailorSvc *tailor.Service,
	discoverySvc *discovery.Service,
	projectsSvc *projects.Service,
	logger arbor.ILogger,
) *Handlers {
	return &Handlers{
		limiter:   limiter,
		quota:     quotaMgr,
		audit:     audit,
		kv:        kv,
		queueMgr:  queueMgr,
		browsers:  browsers,
		fill:      fill,
		tailor:    tailorSvc,
		discovery: discoverySvc,
		projects:  projectsSvc,
		logger:    logger,
		validate:  validator.New(),
	}
}

// RegisterAll registers every handler with the worker pool
func (h *Handlers) RegisterAll(pool *queue.WorkerPool) {
	pool.RegisterHandler(models.JobTypeResumeTailoring, h.HandleResumeTailoring)
	pool.RegisterHandler(models.JobTypeJobApplication, h.HandleJobApplication)
	pool.RegisterHandler(models.JobTypeJobSearch, h.HandleJobSearch)
	pool.RegisterHandler(models.JobTypeProjectAnalysis, h.HandleProjectAnalysis)
}

// decodePayload maps the job's payload into a typed struct and
// validates it.
func (h *Handlers) decodePayload(payload map[string]interface{}, dest interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.validate.Struct(dest); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}
	return nil
}

// loadProfile reads the user's application profile from the KV store
func (h *Handlers) loadProfile(ctx context.Context, userID string) (*models.Profile, error) {
	raw, err := h.kv.Get(ctx, profileKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("no profile stored for user %s: %w", userID, err)
	}
	profile := models.NewProfile()
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		return nil, fmt.Errorf("stored profile for user %s is unreadable: %w", userID, err)
	}
	return profile, nil
}

// recordAudit emits one security-audit event; failures are logged, not
// propagated.
func (h *Handlers) recordAudit(ctx context.Context, eventType, userID, action string, started time.Time, payload map[string]interface{}) {
	event := &models.AuditEvent{
		EventType:       eventType,
		UserID:          userID,
		Action:          action,
		DurationSeconds: time.Since(started).Seconds(),
		Payload:         payload,
	}
	if err := h.audit.Record(ctx, event); err != nil {
		h.logger.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record audit event")
	}
}
