package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

// ErrNoJob is returned when no dispatchable job is pending
var ErrNoJob = errors.New("no jobs in queue")

// ErrUserCapReached is wrapped into the submit error when a user holds
// too many live jobs.
var ErrUserCapReached = errors.New("reached maximum concurrent jobs limit")

// jobTTL bounds how long job data, user index entries, and results live
const jobTTL = 24 * time.Hour

// cancelSignalTTL bounds how long a cancellation flag waits for its
// worker to notice.
const cancelSignalTTL = 5 * time.Minute

const (
	indexPrefix  = "jobs:index:"
	dataPrefix   = "jobs:data:"
	userPrefix   = "jobs:user:"
	resultPrefix = "jobs:result:"
	cancelPrefix = "cancel_signal:"
)

// Manager is the persistent priority queue. Pending order lives in
// zero-padded score index keys so Badger's lexicographic iteration is
// dispatch order. The active set is in-process; a restart intentionally
// re-queues nothing and loses nothing but in-flight claims.
type Manager struct {
	db     *badgerstore.BadgerDB
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger

	maxConcurrentPerUser int

	// now is replaceable in tests
	now func() time.Time

	mu     sync.Mutex
	active map[string]*models.JobRequest

	// submitMu serializes the cap check with the persist so concurrent
	// submits cannot both pass the count and overshoot the cap
	submitMu sync.Mutex
}

// NewManager creates the queue manager
func NewManager(db *badgerstore.BadgerDB, kv interfaces.KeyValueStorage, maxConcurrentPerUser int, logger arbor.ILogger) *Manager {
	if maxConcurrentPerUser <= 0 {
		maxConcurrentPerUser = 2
	}
	return &Manager{
		db:                   db,
		kv:                   kv,
		logger:               logger,
		maxConcurrentPerUser: maxConcurrentPerUser,
		now:                  time.Now,
		active:               make(map[string]*models.JobRequest),
	}
}

func indexKey(score int64, jobID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", indexPrefix, score, jobID))
}

func dataKey(jobID string) []byte {
	return []byte(dataPrefix + jobID)
}

func userKey(userID, jobID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", userPrefix, userID, jobID))
}

func resultKey(jobID string) []byte {
	return []byte(resultPrefix + jobID)
}

func cancelKey(jobID string) string {
	return cancelPrefix + jobID
}

// Submit validates the per-user cap and persists the job. The cap counts
// the union of the user's queued and running jobs; a denied submit
// mutates nothing.
func (m *Manager) Submit(
	ctx context.Context,
	userID string,
	jobType models.JobType,
	payload map[string]interface{},
	priority models.JobPriority,
	scheduledAt *time.Time,
	timeout time.Duration,
) (*models.JobRequest, error) {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	live, err := m.countLiveJobs(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count user jobs: %w", err)
	}
	if live >= m.maxConcurrentPerUser {
		return nil, fmt.Errorf("%w (%d)", ErrUserCapReached, m.maxConcurrentPerUser)
	}

	job := &models.JobRequest{
		JobID:          common.NewJobID(),
		UserID:         userID,
		JobType:        jobType,
		Priority:       priority,
		Payload:        payload,
		CreatedAt:      m.now(),
		ScheduledAt:    scheduledAt,
		TimeoutSeconds: int(timeout.Seconds()),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	err = m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := txn.SetEntry(badgerdb.NewEntry(dataKey(job.JobID), data).WithTTL(jobTTL)); err != nil {
			return err
		}
		if err := txn.SetEntry(badgerdb.NewEntry(indexKey(job.Score(), job.JobID), nil).WithTTL(jobTTL)); err != nil {
			return err
		}
		return txn.SetEntry(badgerdb.NewEntry(userKey(userID, job.JobID), nil).WithTTL(jobTTL))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	m.logger.Info().
		Str("job_id", job.JobID).
		Str("user_id", userID).
		Str("job_type", string(jobType)).
		Int("priority", int(priority)).
		Msg("Job submitted")

	return job, nil
}

// countLiveJobs counts the user's jobs in (queued ∪ active)
func (m *Manager) countLiveJobs(userID string) (int, error) {
	m.mu.Lock()
	activeIDs := make(map[string]bool)
	for id, job := range m.active {
		if job.UserID == userID {
			activeIDs[id] = true
		}
	}
	m.mu.Unlock()

	count := len(activeIDs)
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(userPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			jobID := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			if activeIDs[jobID] {
				continue
			}
			queued, err := m.isQueued(txn, jobID)
			if err != nil {
				return err
			}
			if queued {
				count++
			}
		}
		return nil
	})
	return count, err
}

// isQueued checks whether the job's index entry still exists
func (m *Manager) isQueued(txn *badgerdb.Txn, jobID string) (bool, error) {
	job, err := m.loadJob(txn, jobID)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	_, err = txn.Get(indexKey(job.Score(), jobID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// loadJob reads a JobRequest inside a transaction
func (m *Manager) loadJob(txn *badgerdb.Txn, jobID string) (*models.JobRequest, error) {
	item, err := txn.Get(dataKey(jobID))
	if err != nil {
		return nil, err
	}
	var job models.JobRequest
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob reads a stored JobRequest
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.JobRequest, error) {
	var job *models.JobRequest
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		j, err := m.loadJob(txn, jobID)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	return job, err
}

// Status resolves a job's lifecycle state: RUNNING beats QUEUED beats a
// terminal result. Returns empty status when the job is unknown.
func (m *Manager) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	m.mu.Lock()
	_, running := m.active[jobID]
	m.mu.Unlock()
	if running {
		return models.JobStatusRunning, nil
	}

	var queued bool
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		q, err := m.isQueued(txn, jobID)
		if err != nil {
			return err
		}
		queued = q
		return nil
	})
	if err != nil {
		return "", err
	}
	if queued {
		return models.JobStatusQueued, nil
	}

	result, err := m.GetResult(ctx, jobID)
	if err != nil {
		return "", err
	}
	if result != nil {
		return result.Status, nil
	}
	return "", nil
}

// Pop claims the lowest-scored dispatchable job and moves it to the
// active set. Jobs scheduled in the future hold their place; ErrNoJob is
// returned so the worker sleeps and retries.
func (m *Manager) Pop(ctx context.Context) (*models.JobRequest, error) {
	var claimed *models.JobRequest

	err := m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(indexPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			suffix := string(key[len(prefix):])
			colon := strings.IndexByte(suffix, ':')
			if colon < 0 {
				continue
			}
			jobID := suffix[colon+1:]

			job, err := m.loadJob(txn, jobID)
			if err != nil {
				if errors.Is(err, badgerdb.ErrKeyNotFound) {
					// Data expired out from under the index
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if job.ScheduledAt != nil && job.ScheduledAt.After(m.now()) {
				return ErrNoJob
			}

			if err := txn.Delete(key); err != nil {
				return err
			}
			claimed = job
			return nil
		}
		return ErrNoJob
	})
	if err != nil {
		// A losing claim race looks like an empty queue to the caller
		if errors.Is(err, badgerdb.ErrConflict) {
			return nil, ErrNoJob
		}
		return nil, err
	}

	m.mu.Lock()
	m.active[claimed.JobID] = claimed
	m.mu.Unlock()

	return claimed, nil
}

// Finish records the result, drops the active entry, and clears any
// cancellation signal. Runs on every worker exit path.
func (m *Manager) Finish(ctx context.Context, result *models.JobResult) error {
	m.mu.Lock()
	delete(m.active, result.JobID)
	m.mu.Unlock()

	if err := m.kv.Delete(ctx, cancelKey(result.JobID)); err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		m.logger.Warn().Err(err).Str("job_id", result.JobID).Msg("Failed clearing cancel signal")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry(resultKey(result.JobID), data).WithTTL(jobTTL))
	})
}

// GetResult reads a terminal result, nil when absent
func (m *Manager) GetResult(ctx context.Context, jobID string) (*models.JobResult, error) {
	var result *models.JobResult
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(resultKey(jobID))
		if err != nil {
			return err
		}
		var r models.JobResult
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		}); err != nil {
			return err
		}
		result = &r
		return nil
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	return result, err
}

// Cancel removes a queued job or flags a running one for cooperative
// cancellation. Only the owner may cancel.
func (m *Manager) Cancel(ctx context.Context, jobID, userID string) error {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.UserID != userID {
		return fmt.Errorf("job %s is not owned by user %s", jobID, userID)
	}

	err = m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(indexKey(job.Score(), jobID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to dequeue job: %w", err)
	}

	m.mu.Lock()
	_, running := m.active[jobID]
	m.mu.Unlock()
	if running {
		if err := m.kv.SetWithTTL(ctx, cancelKey(jobID), "1", cancelSignalTTL); err != nil {
			return fmt.Errorf("failed to set cancel signal: %w", err)
		}
	}

	now := time.Now()
	result := &models.JobResult{
		JobID:       jobID,
		Status:      models.JobStatusCancelled,
		Error:       "cancelled by user",
		CompletedAt: &now,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := m.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry(resultKey(jobID), data).WithTTL(jobTTL))
	}); err != nil {
		return err
	}

	m.logger.Info().Str("job_id", jobID).Str("user_id", userID).Bool("was_running", running).Msg("Job cancelled")
	return nil
}

// IsCancelled reports whether a cancellation signal is live for the job
func (m *Manager) IsCancelled(ctx context.Context, jobID string) bool {
	exists, err := m.kv.Exists(ctx, cancelKey(jobID))
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancel signal check failed")
		return false
	}
	return exists
}

// ActiveCount returns the number of in-flight jobs
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stats snapshots queue occupancy. Priority is parsed from the index
// score without loading job data.
func (m *Manager) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{
		ByPriority: make(map[models.JobPriority]int),
	}

	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(indexPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			suffix := key[len(indexPrefix):]
			if len(suffix) < 20 {
				continue
			}
			var score int64
			if _, err := fmt.Sscanf(suffix[:20], "%d", &score); err != nil {
				continue
			}
			stats.TotalQueued++
			stats.ByPriority[models.JobPriority(score/1_000_000)]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.TotalActive = m.ActiveCount()
	return stats, nil
}

// UserJob pairs a request with its result for listings
type UserJob struct {
	Job    *models.JobRequest `json:"job"`
	Status models.JobStatus   `json:"status"`
	Result *models.JobResult  `json:"result,omitempty"`
}

// UserJobs lists the user's jobs, newest first
func (m *Manager) UserJobs(ctx context.Context, userID string) ([]UserJob, error) {
	var jobIDs []string
	err := m.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(userPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			jobIDs = append(jobIDs, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]UserJob, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := m.GetJob(ctx, id)
		if err != nil || job == nil {
			continue
		}
		status, err := m.Status(ctx, id)
		if err != nil {
			continue
		}
		result, _ := m.GetResult(ctx, id)
		out = append(out, UserJob{Job: job, Status: status, Result: result})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Job.CreatedAt.After(out[j].Job.CreatedAt)
	})
	return out, nil
}
