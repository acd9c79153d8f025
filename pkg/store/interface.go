package store

import (
	"github.com/butlernet/jobboard/pkg/models"
)

// Store defines the board's bookkeeping for jobs, bids, and selection
// results. The marketplace is in-memory by contract; the interface exists so
// the board never depends on a concrete container.
type Store interface {
	// Job operations
	CreateJob(job *models.JobListing) error
	GetJob(id string) (*models.JobListing, error)
	GetAllJobs() []*models.JobListing
	GetJobsByStatus(status models.JobStatus) []*models.JobListing
	UpdateJobStatus(id string, to models.JobStatus, reason string) error

	// Bid operations. AppendBid panics on a duplicate bid id: bid ids are
	// unique across the board's lifetime and a collision is a bug in a
	// collaborator, not a marketplace condition.
	AppendBid(bid *models.Bid) error
	GetBids(jobID string) []models.Bid

	// Selection results
	SetResult(result *models.BidResult) error
	GetResult(jobID string) (*models.BidResult, error)
}
