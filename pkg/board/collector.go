package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/butlernet/jobboard/pkg/logging"
	"github.com/butlernet/jobboard/pkg/models"
)

// Collector fans out a job to matching workers and gathers whichever bids
// arrive inside the bid window.
type Collector struct {
	log *logging.Logger
}

// NewCollector creates a Collector logging through the given logger
func NewCollector(logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Collector{log: logger.WithField("component", "collector")}
}

// Collect invokes every worker's evaluator concurrently under a single
// shared deadline equal to the job's bid window, and returns the bids that
// completed before expiry.
//
// One worker's failure, panic, or timeout is invisible to all others: it
// just contributes zero bids. When the deadline fires the bid list is
// snapshotted and returned immediately; evaluators still running are
// cancelled through their context and can never retroactively insert a bid
// into the returned result. Collection itself cannot fail; an empty bid
// list is a valid, expected outcome.
func (c *Collector) Collect(ctx context.Context, job *models.JobListing, workers []*models.RegisteredWorker) []models.Bid {
	bids := []models.Bid{}
	if len(workers) == 0 {
		return bids
	}

	window := job.BidWindow()
	sharedCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	results := make(chan *models.Bid, len(workers))
	var wg sync.WaitGroup

	for _, worker := range workers {
		wg.Add(1)
		go func(w *models.RegisteredWorker) {
			defer wg.Done()
			results <- c.evaluate(sharedCtx, w, job, window)
		}(worker)
	}

	// Close the channel once every evaluator has reported, so a fast
	// round ends before the window does.
	go func() {
		wg.Wait()
		close(results)
	}()

	for {
		select {
		case bid, ok := <-results:
			if !ok {
				return bids
			}
			if bid != nil {
				bid.JobID = job.JobID
				// Arrival time on the board's own monotonic clock, never
				// trusted from the evaluator: the selector's tie-break
				// depends on it.
				bid.SubmittedAt = time.Now()
				bids = append(bids, *bid)
			}
		case <-sharedCtx.Done():
			c.log.Info("bid window closed", map[string]interface{}{
				"job_id": job.JobID,
				"bids":   len(bids),
			})
			return bids
		}
	}
}

// evaluate runs a single worker's evaluator with its own per-call timeout
// and panic isolation. A nil return means the worker abstained.
func (c *Collector) evaluate(ctx context.Context, worker *models.RegisteredWorker, job *models.JobListing, window time.Duration) (bid *models.Bid) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("evaluator panicked", map[string]interface{}{
				"job_id":    job.JobID,
				"worker_id": worker.WorkerID,
				"panic":     fmt.Sprintf("%v", r),
			})
			bid = nil
		}
	}()

	if worker.Evaluator == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	b, err := worker.Evaluator(callCtx, job)
	if err != nil {
		c.log.Warn("evaluator failed, worker abstains", map[string]interface{}{
			"job_id":    job.JobID,
			"worker_id": worker.WorkerID,
			"error":     err.Error(),
		})
		return nil
	}
	if b != nil && b.BidderID == "" {
		b.BidderID = worker.WorkerID
	}
	return b
}
