package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/butlernet/jobboard/pkg/logging"
	"github.com/butlernet/jobboard/pkg/models"
	"github.com/butlernet/jobboard/pkg/registry"
	"github.com/butlernet/jobboard/pkg/store"
)

// OnChainAccept is the settlement hook invoked at most once per successful
// selection. Its failure is logged, never propagated.
type OnChainAccept func(ctx context.Context, bid *models.Bid) error

// MetricsRecorder is an interface for recording auction metrics
type MetricsRecorder interface {
	RecordAuction(outcome string)
	RecordBidsCollected(count int)
	ObserveSelection(d time.Duration)
}

// Event describes a job status transition, delivered to subscribed
// listeners after the transition is applied.
type Event struct {
	JobID     string           `json:"job_id"`
	From      models.JobStatus `json:"from"`
	To        models.JobStatus `json:"to"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Listener receives job events. Listeners must not block; a panicking
// listener is isolated and logged.
type Listener func(Event)

// JobBoard orchestrates the registry, collector and selector per job. One
// board serves many concurrent auctions; unrelated jobs never serialize on
// each other.
type JobBoard struct {
	registry  *registry.WorkerRegistry
	store     store.Store
	collector *Collector
	log       *logging.Logger

	metrics     MetricsRecorder
	listenersMu sync.RWMutex
	listeners   []Listener
	execHandoff bool
}

// NewJobBoard creates a board over the given registry and store. The board
// instance is owned and passed by the hosting application; there is no
// global singleton.
func NewJobBoard(reg *registry.WorkerRegistry, st store.Store, logger *logging.Logger) *JobBoard {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &JobBoard{
		registry:  reg,
		store:     st,
		collector: NewCollector(logger),
		log:       logger.WithField("component", "board"),
	}
}

// SetMetricsRecorder sets the metrics recorder for the board
func (b *JobBoard) SetMetricsRecorder(m MetricsRecorder) {
	b.metrics = m
}

// EnableExecutionHandoff makes the board hand assigned jobs to the winning
// worker's executor in the background. Without it the caller dispatches.
func (b *JobBoard) EnableExecutionHandoff() {
	b.execHandoff = true
}

// Subscribe adds a listener fired after every job status transition.
// Safe to call while auctions run.
func (b *JobBoard) Subscribe(l Listener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Registry returns the board's worker registry
func (b *JobBoard) Registry() *registry.WorkerRegistry {
	return b.registry
}

// PostAndSelect runs the full post → broadcast → collect → select pipeline
// for one job and returns the outcome.
//
// Marketplace-level outcomes ("no bids", "all bids over budget") are data in
// the returned BidResult, never errors. The error return is reserved for
// contract violations: a malformed listing or a duplicate job id.
func (b *JobBoard) PostAndSelect(ctx context.Context, job *models.JobListing, accept OnChainAccept) (*models.BidResult, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job listing")
	}
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	job.Status = models.JobStatusOpen
	if err := b.store.CreateJob(job); err != nil {
		return nil, err
	}
	b.notify(Event{JobID: job.JobID, From: "", To: models.JobStatusOpen, Reason: "posted", Timestamp: time.Now()})

	matching, rejection := b.registry.FindMatching(job)
	b.log.Info("job posted", map[string]interface{}{
		"job_id":   job.JobID,
		"tags":     job.Tags,
		"budget":   job.Budget,
		"matching": len(matching),
	})
	if len(matching) == 0 && rejection != "" {
		b.log.Debug("no matching workers", map[string]interface{}{
			"job_id": job.JobID,
			"reason": rejection,
		})
	}

	bids := b.collector.Collect(ctx, job, matching)
	for i := range bids {
		if err := b.store.AppendBid(&bids[i]); err != nil {
			return nil, err
		}
	}
	if b.metrics != nil {
		b.metrics.RecordBidsCollected(len(bids))
	}

	if err := b.transition(job.JobID, models.JobStatusSelecting, "bid window elapsed"); err != nil {
		// The only legal way out of OPEN besides SELECTING is an
		// out-of-band cancel; report it as an outcome, not an error.
		return b.cancelledResult(job, bids), nil
	}

	started := time.Now()
	result := Select(job, bids)
	if b.metrics != nil {
		b.metrics.ObserveSelection(time.Since(started))
	}

	if result.WinningBid != nil {
		if err := b.transition(job.JobID, models.JobStatusAssigned, result.Reason); err != nil {
			return b.cancelledResult(job, bids), nil
		}
		if b.metrics != nil {
			b.metrics.RecordAuction("assigned")
		}
		b.settle(ctx, job, result.WinningBid, accept)
		if b.execHandoff {
			b.dispatch(job, result.WinningBid)
		}
	} else {
		if err := b.transition(job.JobID, models.JobStatusExpired, result.Reason); err != nil {
			return b.cancelledResult(job, bids), nil
		}
		if b.metrics != nil {
			b.metrics.RecordAuction("expired")
		}
	}

	if err := b.store.SetResult(result); err != nil {
		b.log.Error("failed to record result", map[string]interface{}{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}
	return result, nil
}

// Cancel aborts an auction out of band. Legal from OPEN or SELECTING;
// terminal jobs reject it.
func (b *JobBoard) Cancel(jobID, reason string) error {
	if reason == "" {
		reason = "cancelled by poster"
	}
	if err := b.transition(jobID, models.JobStatusCancelled, reason); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.RecordAuction("cancelled")
	}
	return nil
}

// settle invokes the on-chain accept hook. A failure here is the caller's
// concern: it is logged and counted, and the in-memory assignment stands.
func (b *JobBoard) settle(ctx context.Context, job *models.JobListing, winner *models.Bid, accept OnChainAccept) {
	if accept == nil {
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("accept hook panicked: %v", r)
			}
		}()
		return accept(ctx, winner)
	}()

	if err != nil {
		b.log.Error("on-chain accept failed, assignment stands", map[string]interface{}{
			"job_id":    job.JobID,
			"bid_id":    winner.BidID,
			"bidder_id": winner.BidderID,
			"error":     err.Error(),
		})
		if b.metrics != nil {
			b.metrics.RecordAuction("settlement_error")
		}
	}
}

// dispatch hands the job to the winning worker's executor in the
// background. The board does not interpret the result beyond logging it.
func (b *JobBoard) dispatch(job *models.JobListing, winner *models.Bid) {
	worker, ok := b.registry.Get(winner.BidderID)
	if !ok || worker.Executor == nil {
		b.log.Warn("winner has no executor, handoff skipped", map[string]interface{}{
			"job_id":    job.JobID,
			"bidder_id": winner.BidderID,
		})
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("executor panicked", map[string]interface{}{
					"job_id":    job.JobID,
					"worker_id": worker.WorkerID,
					"panic":     fmt.Sprintf("%v", r),
				})
			}
		}()

		res, err := worker.Executor(context.Background(), job, winner)
		if err != nil {
			b.log.Error("execution failed", map[string]interface{}{
				"job_id":    job.JobID,
				"worker_id": worker.WorkerID,
				"error":     err.Error(),
			})
			return
		}
		fields := map[string]interface{}{
			"job_id":    job.JobID,
			"worker_id": worker.WorkerID,
		}
		if res != nil {
			fields["success"] = res.Success
		}
		b.log.Info("execution finished", fields)
	}()
}

// cancelledResult is returned when a job was cancelled mid-auction
func (b *JobBoard) cancelledResult(job *models.JobListing, bids []models.Bid) *models.BidResult {
	all := make([]models.Bid, len(bids))
	copy(all, bids)
	result := &models.BidResult{
		JobID:   job.JobID,
		AllBids: all,
		Reason:  "job cancelled before selection completed",
	}
	if err := b.store.SetResult(result); err != nil {
		b.log.Error("failed to record result", map[string]interface{}{
			"job_id": job.JobID,
			"error":  err.Error(),
		})
	}
	return result
}

// transition applies a status change and notifies listeners
func (b *JobBoard) transition(jobID string, to models.JobStatus, reason string) error {
	job, err := b.store.GetJob(jobID)
	if err != nil {
		return err
	}
	from := job.Status
	if err := b.store.UpdateJobStatus(jobID, to, reason); err != nil {
		return err
	}
	b.notify(Event{JobID: jobID, From: from, To: to, Reason: reason, Timestamp: time.Now()})
	return nil
}

// notify fans an event out to listeners, isolating panics so a broken
// listener can never affect an auction.
func (b *JobBoard) notify(ev Event) {
	b.listenersMu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event listener panicked", map[string]interface{}{
						"job_id": ev.JobID,
						"panic":  fmt.Sprintf("%v", r),
					})
				}
			}()
			l(ev)
		}()
	}
}

// Query surface. All read-only; none of these mutate board state.

// GetJob retrieves a job by id
func (b *JobBoard) GetJob(id string) (*models.JobListing, error) {
	return b.store.GetJob(id)
}

// GetBids returns the bids recorded for a job
func (b *JobBoard) GetBids(jobID string) []models.Bid {
	return b.store.GetBids(jobID)
}

// GetResult returns the selection outcome for a finished auction
func (b *JobBoard) GetResult(jobID string) (*models.BidResult, error) {
	return b.store.GetResult(jobID)
}

// ListOpenJobs returns jobs whose bid window is still running
func (b *JobBoard) ListOpenJobs() []*models.JobListing {
	return b.store.GetJobsByStatus(models.JobStatusOpen)
}

// ListAllJobs returns every job the board has seen
func (b *JobBoard) ListAllJobs() []*models.JobListing {
	return b.store.GetAllJobs()
}

// Workers returns a snapshot copy of the registered workers
func (b *JobBoard) Workers() map[string]*models.RegisteredWorker {
	return b.registry.Workers()
}
