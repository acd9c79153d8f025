package models

import (
	"fmt"
	"time"
)

// JobStatus represents the status of a posted job
type JobStatus string

const (
	JobStatusOpen      JobStatus = "open"      // Bid window is running
	JobStatusSelecting JobStatus = "selecting" // Window closed, winner being computed
	JobStatusAssigned  JobStatus = "assigned"  // Winner selected
	JobStatusExpired   JobStatus = "expired"   // No acceptable bid arrived
	JobStatusCancelled JobStatus = "cancelled" // Poster aborted the auction
)

// DefaultBidWindowSeconds is used when a posting does not set its own window.
const DefaultBidWindowSeconds = 60

// JobListing represents a task posted to the marketplace
type JobListing struct {
	JobID            string                 `json:"job_id"`
	Description      string                 `json:"description"`
	Tags             []string               `json:"tags"`
	Budget           float64                `json:"budget"`
	DeadlineTS       int64                  `json:"deadline_ts,omitempty"`
	Poster           string                 `json:"poster,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	BidWindowSeconds int                    `json:"bid_window_seconds,omitempty"`
	Status           JobStatus              `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
	StateTransitions []StateTransition      `json:"state_transitions,omitempty"`
}

// BidWindow returns the bid collection window as a duration, falling back to
// the marketplace default when the posting did not set one.
func (j *JobListing) BidWindow() time.Duration {
	if j.BidWindowSeconds <= 0 {
		return DefaultBidWindowSeconds * time.Second
	}
	return time.Duration(j.BidWindowSeconds) * time.Second
}

// Clone returns a deep copy of the listing. The store's read paths hand out
// clones so a caller never observes a status transition mid-read.
func (j *JobListing) Clone() *JobListing {
	c := *j
	if j.Tags != nil {
		c.Tags = make([]string, len(j.Tags))
		copy(c.Tags, j.Tags)
	}
	if j.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	if j.StateTransitions != nil {
		c.StateTransitions = make([]StateTransition, len(j.StateTransitions))
		copy(c.StateTransitions, j.StateTransitions)
	}
	return &c
}

// Validate checks the fields a posting must carry before it can be auctioned.
// A violation here is a bug in the caller, not a marketplace condition.
func (j *JobListing) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job listing has no job_id")
	}
	if j.Budget <= 0 {
		return fmt.Errorf("job %s has non-positive budget %v", j.JobID, j.Budget)
	}
	if len(j.Tags) == 0 {
		return fmt.Errorf("job %s has no tags", j.JobID)
	}
	return nil
}

// Bid represents a worker's priced offer to perform a job
type Bid struct {
	BidID            string    `json:"bid_id"`
	JobID            string    `json:"job_id"`
	BidderID         string    `json:"bidder_id"`
	BidderAddress    string    `json:"bidder_address,omitempty"`
	Amount           float64   `json:"amount"`
	EstimatedSeconds int       `json:"estimated_seconds"`
	Tags             []string  `json:"tags,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// BidResult is the outcome of one selection round
type BidResult struct {
	JobID      string `json:"job_id"`
	WinningBid *Bid   `json:"winning_bid,omitempty"`
	AllBids    []Bid  `json:"all_bids"`
	Reason     string `json:"reason"`
}

// StateTransition tracks job status changes with timestamps
type StateTransition struct {
	From      JobStatus `json:"from"`
	To        JobStatus `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
