package models

import (
	"context"
	"time"
)

// Evaluator is the async callback a worker supplies at registration time.
// Given a listing it returns a bid, or nil to abstain. The board invokes it
// under the job's bid-window deadline; an evaluator that blocks past the
// deadline is cancelled via ctx and contributes no bid.
type Evaluator func(ctx context.Context, job *JobListing) (*Bid, error)

// Executor optionally performs the job after the worker's bid won.
// The board only hands off; it does not interpret the result.
type Executor func(ctx context.Context, job *JobListing, bid *Bid) (*ExecutionResult, error)

// RegisteredWorker represents a bidding participant on the board
type RegisteredWorker struct {
	WorkerID      string            `json:"worker_id"`
	Address       string            `json:"address,omitempty"`
	Tags          []string          `json:"tags"`
	MaxConcurrent int               `json:"max_concurrent"`
	Labels        map[string]string `json:"labels,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at"`

	// Behavioral, never serialized. ActiveJobs is informational: it is
	// supplied by the worker and re-read at matching time; the board never
	// mutates it.
	Evaluator  Evaluator  `json:"-"`
	Executor   Executor   `json:"-"`
	ActiveJobs func() int `json:"-"`
}

// CurrentLoad returns the worker's in-flight job count, zero when the worker
// did not wire a counter.
func (w *RegisteredWorker) CurrentLoad() int {
	if w.ActiveJobs == nil {
		return 0
	}
	return w.ActiveJobs()
}

// AtCapacity reports whether the worker may not take another job
func (w *RegisteredWorker) AtCapacity() bool {
	max := w.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	return w.CurrentLoad() >= max
}

// ExecutionResult is what a worker's executor reports back after handoff
type ExecutionResult struct {
	JobID       string                 `json:"job_id"`
	WorkerID    string                 `json:"worker_id"`
	Success     bool                   `json:"success"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}
