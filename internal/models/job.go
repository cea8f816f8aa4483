package models

import (
	"time"
)

// JobType identifies the kind of work a job performs
type JobType string

const (
	JobTypeResumeTailoring JobType = "resume_tailoring"
	JobTypeJobApplication  JobType = "job_application"
	JobTypeJobSearch       JobType = "job_search"
	JobTypeProjectAnalysis JobType = "project_analysis"
)

// JobPriority orders jobs within the queue. Lower values dispatch first.
type JobPriority int

const (
	PriorityCritical JobPriority = 1
	PriorityHigh     JobPriority = 2
	PriorityNormal   JobPriority = 3
	PriorityLow      JobPriority = 4
	PriorityBatch    JobPriority = 5
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusTimeout   JobStatus = "TIMEOUT"
)

// JobRequest is the unit of work accepted by the queue. It is exclusively
// owned by the queue until a worker claims it.
type JobRequest struct {
	JobID          string                 `json:"job_id"`
	UserID         string                 `json:"user_id"`
	JobType        JobType                `json:"job_type"`
	Priority       JobPriority            `json:"priority"`
	Payload        map[string]interface{} `json:"payload"`
	CreatedAt      time.Time              `json:"created_at"`
	ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	RetryCount     int                    `json:"retry_count"`
	MaxRetries     int                    `json:"max_retries"`
}

// Score computes the priority-queue ordering score. Lower scores dispatch
// first; the epoch component keeps FIFO order within a priority band.
func (r *JobRequest) Score() int64 {
	return int64(r.Priority)*1_000_000 + r.CreatedAt.Unix()
}

// JobResult records the outcome of a job. Persisted under a 24h TTL.
type JobResult struct {
	JobID         string      `json:"job_id"`
	Status        JobStatus   `json:"status"`
	Result        interface{} `json:"result,omitempty"`
	Error         string      `json:"error,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	ExecutionTime float64     `json:"execution_time,omitempty"` // seconds
}

// QueueStats is a point-in-time snapshot of queue state
type QueueStats struct {
	TotalQueued int                 `json:"total_queued"`
	TotalActive int                 `json:"total_active"`
	MaxWorkers  int                 `json:"max_workers"`
	ByPriority  map[JobPriority]int `json:"by_priority"`
}

// AuditEvent is a security-audit record emitted by job handlers
type AuditEvent struct {
	EventID         string                 `json:"event_id" badgerhold:"key"`
	EventType       string                 `json:"event_type"`
	UserID          string                 `json:"user_id"`
	Action          string                 `json:"action"`
	DurationSeconds float64                `json:"duration_seconds"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}
