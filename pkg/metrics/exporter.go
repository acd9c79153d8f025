// Package metrics exports board metrics in Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/butlernet/jobboard/pkg/models"
	"github.com/butlernet/jobboard/pkg/registry"
	"github.com/butlernet/jobboard/pkg/store"
)

// BoardExporter exports Prometheus metrics for the job board. It also
// implements the board's MetricsRecorder interface.
type BoardExporter struct {
	store    store.Store
	registry *registry.WorkerRegistry

	startTime time.Time
	mu        sync.RWMutex
	auctions  map[string]int64 // outcome -> count
	bidsTotal int64
	selDurs   []float64
}

// NewBoardExporter creates a new Prometheus exporter for the board
func NewBoardExporter(st store.Store, reg *registry.WorkerRegistry) *BoardExporter {
	return &BoardExporter{
		store:     st,
		registry:  reg,
		startTime: time.Now(),
		auctions:  make(map[string]int64),
		selDurs:   make([]float64, 0),
	}
}

// RecordAuction counts one auction outcome
func (e *BoardExporter) RecordAuction(outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auctions[outcome]++
}

// RecordBidsCollected counts bids gathered in one collection round
func (e *BoardExporter) RecordBidsCollected(count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bidsTotal += int64(count)
}

// ObserveSelection records how long one selection took
func (e *BoardExporter) ObserveSelection(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selDurs = append(e.selDurs, d.Seconds())
	if len(e.selDurs) > 1000 {
		e.selDurs = e.selDurs[len(e.selDurs)-1000:]
	}
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *BoardExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// jobboard_jobs_total{status}
	jobsByStatus := map[models.JobStatus]int{
		models.JobStatusOpen:      0,
		models.JobStatusSelecting: 0,
		models.JobStatusAssigned:  0,
		models.JobStatusExpired:   0,
		models.JobStatusCancelled: 0,
	}
	for _, job := range e.store.GetAllJobs() {
		jobsByStatus[job.Status]++
	}
	fmt.Fprintf(w, "# HELP jobboard_jobs_total Jobs by status\n")
	fmt.Fprintf(w, "# TYPE jobboard_jobs_total gauge\n")
	for _, status := range []models.JobStatus{
		models.JobStatusOpen, models.JobStatusSelecting, models.JobStatusAssigned,
		models.JobStatusExpired, models.JobStatusCancelled,
	} {
		fmt.Fprintf(w, "jobboard_jobs_total{status=\"%s\"} %d\n", status, jobsByStatus[status])
	}

	// jobboard_workers_registered / at capacity
	workers := e.registry.Workers()
	atCapacity := 0
	for _, worker := range workers {
		if worker.AtCapacity() {
			atCapacity++
		}
	}
	fmt.Fprintf(w, "\n# HELP jobboard_workers_registered Registered workers\n")
	fmt.Fprintf(w, "# TYPE jobboard_workers_registered gauge\n")
	fmt.Fprintf(w, "jobboard_workers_registered %d\n", len(workers))

	fmt.Fprintf(w, "\n# HELP jobboard_workers_at_capacity Workers at their concurrency cap\n")
	fmt.Fprintf(w, "# TYPE jobboard_workers_at_capacity gauge\n")
	fmt.Fprintf(w, "jobboard_workers_at_capacity %d\n", atCapacity)

	e.mu.RLock()
	// jobboard_auctions_total{outcome}
	fmt.Fprintf(w, "\n# HELP jobboard_auctions_total Auction outcomes\n")
	fmt.Fprintf(w, "# TYPE jobboard_auctions_total counter\n")
	for _, outcome := range []string{"assigned", "expired", "cancelled", "settlement_error"} {
		fmt.Fprintf(w, "jobboard_auctions_total{outcome=\"%s\"} %d\n", outcome, e.auctions[outcome])
	}

	// jobboard_bids_collected_total
	fmt.Fprintf(w, "\n# HELP jobboard_bids_collected_total Bids gathered across all auctions\n")
	fmt.Fprintf(w, "# TYPE jobboard_bids_collected_total counter\n")
	fmt.Fprintf(w, "jobboard_bids_collected_total %d\n", e.bidsTotal)

	// jobboard_selection_duration_seconds_avg
	avgSel := 0.0
	if len(e.selDurs) > 0 {
		sum := 0.0
		for _, d := range e.selDurs {
			sum += d
		}
		avgSel = sum / float64(len(e.selDurs))
	}
	e.mu.RUnlock()
	fmt.Fprintf(w, "\n# HELP jobboard_selection_duration_seconds_avg Average selection time\n")
	fmt.Fprintf(w, "# TYPE jobboard_selection_duration_seconds_avg gauge\n")
	fmt.Fprintf(w, "jobboard_selection_duration_seconds_avg %.6f\n", avgSel)

	fmt.Fprintf(w, "\n# HELP jobboard_uptime_seconds Board uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE jobboard_uptime_seconds gauge\n")
	fmt.Fprintf(w, "jobboard_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	// Append metrics from the Prometheus default registry (runtime, process)
	fmt.Fprintf(w, "\n")
	metricFamilies, err := promclient.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
