package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/butlernet/jobboard/pkg/models"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobExists      = errors.New("job already exists")
	ErrResultNotFound = errors.New("no result for job")
)

// MemoryStore is the in-memory implementation of the board's store.
// Jobs and bids are guarded separately so two concurrent auctions never
// serialize on each other's bid appends.
type MemoryStore struct {
	jobs    map[string]*models.JobListing
	bids    map[string][]models.Bid // job id -> bids
	results map[string]*models.BidResult
	seenBid map[string]bool // bid ids observed over the board's lifetime
	jobsMu  sync.RWMutex
	bidsMu  sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*models.JobListing),
		bids:    make(map[string][]models.Bid),
		results: make(map[string]*models.BidResult),
		seenBid: make(map[string]bool),
	}
}

// CreateJob stores a new job listing
func (s *MemoryStore) CreateJob(job *models.JobListing) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.JobID] = job
	return nil
}

// GetJob retrieves a copy of a job by id. Clones keep readers isolated from
// status transitions performed by in-flight auctions.
func (s *MemoryStore) GetJob(id string) (*models.JobListing, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// GetAllJobs returns copies of all jobs known to the board
func (s *MemoryStore) GetAllJobs() []*models.JobListing {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := make([]*models.JobListing, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	return jobs
}

// GetJobsByStatus returns copies of all jobs currently in the given status
func (s *MemoryStore) GetJobsByStatus(status models.JobStatus) []*models.JobListing {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	jobs := []*models.JobListing{}
	for _, job := range s.jobs {
		if job.Status == status {
			jobs = append(jobs, job.Clone())
		}
	}
	return jobs
}

// UpdateJobStatus transitions a job's status, validating against the FSM and
// recording the transition. Status is monotonic: terminal states reject all
// further updates.
func (s *MemoryStore) UpdateJobStatus(id string, to models.JobStatus, reason string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	if err := models.ValidateTransition(job.Status, to); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}

	job.StateTransitions = append(job.StateTransitions, models.StateTransition{
		From:      job.Status,
		To:        to,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	job.Status = to
	return nil
}

// AppendBid records a bid against its job. Panics on a duplicate bid id.
func (s *MemoryStore) AppendBid(bid *models.Bid) error {
	if bid.BidID == "" {
		panic("bid has no bid_id")
	}

	s.bidsMu.Lock()
	defer s.bidsMu.Unlock()

	if s.seenBid[bid.BidID] {
		panic(fmt.Sprintf("duplicate bid_id %s (job %s, bidder %s)", bid.BidID, bid.JobID, bid.BidderID))
	}
	s.seenBid[bid.BidID] = true
	s.bids[bid.JobID] = append(s.bids[bid.JobID], *bid)
	return nil
}

// GetBids returns a copy of the bids recorded for a job
func (s *MemoryStore) GetBids(jobID string) []models.Bid {
	s.bidsMu.RLock()
	defer s.bidsMu.RUnlock()

	bids := make([]models.Bid, len(s.bids[jobID]))
	copy(bids, s.bids[jobID])
	return bids
}

// SetResult records the outcome of a selection round
func (s *MemoryStore) SetResult(result *models.BidResult) error {
	s.bidsMu.Lock()
	defer s.bidsMu.Unlock()

	s.results[result.JobID] = result
	return nil
}

// GetResult retrieves the selection outcome for a job, if the auction ended
func (s *MemoryStore) GetResult(jobID string) (*models.BidResult, error) {
	s.bidsMu.RLock()
	defer s.bidsMu.RUnlock()

	result, ok := s.results[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	return result, nil
}
