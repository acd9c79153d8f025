// Package agent hosts an in-process worker: it owns the active-job counter,
// wraps the auto-bidder policy into an evaluator, and registers the worker
// on a board with a snapshot of the host it runs on.
package agent

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/butlernet/jobboard/pkg/bidder"
	"github.com/butlernet/jobboard/pkg/logging"
	"github.com/butlernet/jobboard/pkg/models"
)

// Config describes one worker agent
type Config struct {
	WorkerID      string        `json:"worker_id" yaml:"worker_id"`
	Address       string        `json:"address" yaml:"address"`
	Tags          []string      `json:"tags" yaml:"tags"`
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent"`
	Policy        bidder.Config `json:"policy" yaml:"policy"`
}

// Agent is a bidding worker living in the board's process
type Agent struct {
	cfg     Config
	active  atomic.Int64
	policy  *bidder.AutoBidder
	execute models.Executor
	log     *logging.Logger
}

// New creates an agent from config. An empty worker id gets a generated one.
func New(cfg Config, logger *logging.Logger) *Agent {
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.New().String()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}

	a := &Agent{
		cfg: cfg,
		log: logger.WithField("worker_id", cfg.WorkerID),
	}
	a.policy = bidder.New(cfg.WorkerID, cfg.Address, cfg.Tags, cfg.MaxConcurrent, a.ActiveJobs, cfg.Policy)
	return a
}

// SetExecutor wires the function that performs won jobs
func (a *Agent) SetExecutor(exec models.Executor) {
	a.execute = exec
}

// ActiveJobs returns the agent's current in-flight job count
func (a *Agent) ActiveJobs() int {
	return int(a.active.Load())
}

// Worker builds the RegisteredWorker record for this agent, labelled with a
// snapshot of the host hardware.
func (a *Agent) Worker() *models.RegisteredWorker {
	return &models.RegisteredWorker{
		WorkerID:      a.cfg.WorkerID,
		Address:       a.cfg.Address,
		Tags:          a.cfg.Tags,
		MaxConcurrent: a.cfg.MaxConcurrent,
		Labels:        hostLabels(),
		RegisteredAt:  time.Now(),
		Evaluator:     a.policy.Evaluate,
		Executor:      a.runExecutor,
		ActiveJobs:    a.ActiveJobs,
	}
}

// runExecutor tracks the in-flight counter around the wrapped executor so
// capacity checks see this job while it runs.
func (a *Agent) runExecutor(ctx context.Context, job *models.JobListing, bid *models.Bid) (*models.ExecutionResult, error) {
	if a.execute == nil {
		return nil, fmt.Errorf("worker %s has no executor", a.cfg.WorkerID)
	}

	a.active.Add(1)
	defer a.active.Add(-1)

	a.log.Info("executing job", map[string]interface{}{
		"job_id": job.JobID,
		"amount": bid.Amount,
	})
	return a.execute(ctx, job, bid)
}

// hostLabels captures hostname, CPU and memory facts for the registration
// record. Purely informational; matching never reads them.
func hostLabels() map[string]string {
	labels := map[string]string{
		"os":          runtime.GOOS,
		"cpu_threads": fmt.Sprintf("%d", runtime.NumCPU()),
	}

	if hostname, err := os.Hostname(); err == nil {
		labels["hostname"] = hostname
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		labels["cpu_model"] = infos[0].ModelName
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		labels["ram_total_bytes"] = fmt.Sprintf("%d", vmem.Total)
	}

	return labels
}
