// Package bidder implements the worker-side auto-bidding policy: bid on a
// job if and only if the worker's tags intersect the job's tags and the
// worker is under its concurrency cap, pricing at a configured fraction of
// the budget with a hard floor.
package bidder

import (
	"context"

	"github.com/google/uuid"

	"github.com/butlernet/jobboard/pkg/models"
	"github.com/butlernet/jobboard/pkg/registry"
)

// Config holds the per-worker pricing policy
type Config struct {
	BidPriceRatio    float64 `json:"bid_price_ratio" yaml:"bid_price_ratio"`     // fraction of budget to quote
	MinimumAmount    float64 `json:"minimum_amount" yaml:"minimum_amount"`       // never quote below this
	EstimatedSeconds int     `json:"estimated_seconds" yaml:"estimated_seconds"` // promised completion time
}

// DefaultConfig returns the stock policy: quote 80% of budget, floor of one
// settlement unit, five-minute ETA.
func DefaultConfig() Config {
	return Config{
		BidPriceRatio:    0.80,
		MinimumAmount:    1.0,
		EstimatedSeconds: 300,
	}
}

func (c Config) withDefaults() Config {
	if c.BidPriceRatio <= 0 {
		c.BidPriceRatio = 0.80
	}
	if c.MinimumAmount <= 0 {
		c.MinimumAmount = 1.0
	}
	if c.EstimatedSeconds <= 0 {
		c.EstimatedSeconds = 300
	}
	return c
}

// AutoBidder decides whether and how a worker bids on a listing. It performs
// no I/O and reads no global state beyond the load counter it was given, so
// it always returns well inside the collector's per-call timeout.
type AutoBidder struct {
	workerID   string
	address    string
	tags       []string
	maxActive  int
	activeJobs func() int
	cfg        Config
}

// New creates an AutoBidder for one worker
func New(workerID, address string, tags []string, maxConcurrent int, activeJobs func() int, cfg Config) *AutoBidder {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &AutoBidder{
		workerID:   workerID,
		address:    address,
		tags:       tags,
		maxActive:  maxConcurrent,
		activeJobs: activeJobs,
		cfg:        cfg.withDefaults(),
	}
}

// Evaluate implements models.Evaluator. A nil bid means the worker abstains.
func (a *AutoBidder) Evaluate(_ context.Context, job *models.JobListing) (*models.Bid, error) {
	overlap := registry.TagOverlap(a.tags, job.Tags)
	if len(overlap) == 0 {
		return nil, nil // cannot do this job
	}

	if a.load() >= a.maxActive {
		return nil, nil // at capacity
	}

	amount := job.Budget * a.cfg.BidPriceRatio
	if amount < a.cfg.MinimumAmount {
		amount = a.cfg.MinimumAmount
	}

	return &models.Bid{
		BidID:            uuid.New().String(),
		JobID:            job.JobID,
		BidderID:         a.workerID,
		BidderAddress:    a.address,
		Amount:           amount,
		EstimatedSeconds: a.cfg.EstimatedSeconds,
		Tags:             overlap,
	}, nil
}

func (a *AutoBidder) load() int {
	if a.activeJobs == nil {
		return 0
	}
	return a.activeJobs()
}
