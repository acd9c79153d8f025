package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/butlernet/jobboard/pkg/models"
)

// WorkerRegistry holds the set of registered workers. Registration is an
// idempotent upsert keyed by worker id so workers can re-register on restart
// without special-casing.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*models.RegisteredWorker
}

// New creates an empty registry
func New() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[string]*models.RegisteredWorker),
	}
}

// Register adds or replaces a worker. Registering twice with the same id
// silently replaces the previous entry.
func (r *WorkerRegistry) Register(worker *models.RegisteredWorker) error {
	if worker == nil || worker.WorkerID == "" {
		return fmt.Errorf("worker registration requires a worker_id")
	}
	if worker.MaxConcurrent <= 0 {
		worker.MaxConcurrent = 1
	}
	if worker.RegisteredAt.IsZero() {
		worker.RegisteredAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[worker.WorkerID] = worker
	return nil
}

// Unregister removes a worker; no-op if absent
func (r *WorkerRegistry) Unregister(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, workerID)
}

// Get retrieves one worker by id
func (r *WorkerRegistry) Get(workerID string) (*models.RegisteredWorker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	return w, ok
}

// Workers returns a snapshot copy of the registry, not a live reference
func (r *WorkerRegistry) Workers() map[string]*models.RegisteredWorker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]*models.RegisteredWorker, len(r.workers))
	for id, w := range r.workers {
		snapshot[id] = w
	}
	return snapshot
}

// Count returns the number of registered workers
func (r *WorkerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// FindMatching returns every worker under its concurrency cap whose tag set
// intersects the job's tags (case-insensitive). The second return value is
// the first rejection reason encountered, for logging.
func (r *WorkerRegistry) FindMatching(job *models.JobListing) ([]*models.RegisteredWorker, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*models.RegisteredWorker{}
	var rejectionReason string

	for _, worker := range r.workers {
		ok, reason := canWorkerBid(worker, job)
		if ok {
			matched = append(matched, worker)
		} else if rejectionReason == "" {
			rejectionReason = reason
		}
	}

	return matched, rejectionReason
}

// canWorkerBid checks capacity and tag overlap for one worker
func canWorkerBid(worker *models.RegisteredWorker, job *models.JobListing) (bool, string) {
	if worker.AtCapacity() {
		return false, fmt.Sprintf("worker %s is at capacity (%d/%d active jobs)",
			worker.WorkerID, worker.CurrentLoad(), worker.MaxConcurrent)
	}

	if len(TagOverlap(worker.Tags, job.Tags)) == 0 {
		return false, fmt.Sprintf("worker %s tags %v do not intersect job tags %v",
			worker.WorkerID, worker.Tags, job.Tags)
	}

	return true, ""
}

// TagOverlap returns the case-insensitive intersection of two tag sets,
// preserving the casing of the first argument.
func TagOverlap(mine, theirs []string) []string {
	wanted := make(map[string]bool, len(theirs))
	for _, t := range theirs {
		wanted[strings.ToLower(t)] = true
	}

	overlap := []string{}
	seen := make(map[string]bool, len(mine))
	for _, t := range mine {
		key := strings.ToLower(t)
		if wanted[key] && !seen[key] {
			overlap = append(overlap, t)
			seen[key] = true
		}
	}
	return overlap
}
