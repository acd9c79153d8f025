package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/butlernet/jobboard/pkg/agent"
	"github.com/butlernet/jobboard/pkg/bidder"
	"github.com/butlernet/jobboard/pkg/board"
	"github.com/butlernet/jobboard/pkg/logging"
	"github.com/butlernet/jobboard/pkg/models"
)

// BoardHandler handles the board's HTTP API requests. It is a thin adapter:
// all marketplace logic stays in the board.
type BoardHandler struct {
	board         *board.JobBoard
	log           *logging.Logger
	defaultWindow int
}

// NewBoardHandler creates a new board handler
func NewBoardHandler(b *board.JobBoard, logger *logging.Logger) *BoardHandler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &BoardHandler{
		board: b,
		log:   logger.WithField("component", "api"),
	}
}

// SetDefaultBidWindow sets the window applied to postings that do not carry
// their own bid_window_seconds.
func (h *BoardHandler) SetDefaultBidWindow(seconds int) {
	h.defaultWindow = seconds
}

// RegisterRoutes registers all API routes
func (h *BoardHandler) RegisterRoutes(r *mux.Router) {
	// Worker routes
	r.HandleFunc("/workers/register", h.RegisterWorker).Methods("POST")
	r.HandleFunc("/workers", h.ListWorkers).Methods("GET")
	r.HandleFunc("/workers/{id}", h.UnregisterWorker).Methods("DELETE")

	// Job routes
	r.HandleFunc("/jobs", h.PostJob).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}/bids", h.GetJobBids).Methods("GET")
	r.HandleFunc("/jobs/{id}/result", h.GetJobResult).Methods("GET")
	r.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")

	r.HandleFunc("/health", h.Health).Methods("GET")
}

// WorkerRegistration is the wire form of a worker. A closure cannot cross
// the wire, so remote workers register an auto-bidder policy instead and
// the handler builds the evaluator from it.
type WorkerRegistration struct {
	WorkerID      string        `json:"worker_id,omitempty"`
	Address       string        `json:"address,omitempty"`
	Tags          []string      `json:"tags"`
	MaxConcurrent int           `json:"max_concurrent,omitempty"`
	Policy        bidder.Config `json:"policy,omitempty"`
}

// RegisterWorker handles worker registration
func (h *BoardHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var reg WorkerRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(reg.Tags) == 0 {
		http.Error(w, "Worker registration requires at least one tag", http.StatusBadRequest)
		return
	}

	ag := agent.New(agent.Config{
		WorkerID:      reg.WorkerID,
		Address:       reg.Address,
		Tags:          reg.Tags,
		MaxConcurrent: reg.MaxConcurrent,
		Policy:        reg.Policy,
	}, h.log)

	worker := ag.Worker()
	if err := h.board.Registry().Register(worker); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.log.Info("worker registered", map[string]interface{}{
		"worker_id": worker.WorkerID,
		"tags":      worker.Tags,
	})

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(worker)
}

// UnregisterWorker removes a worker from the registry
func (h *BoardHandler) UnregisterWorker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.board.Registry().Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

// ListWorkers returns a snapshot of the registered workers
func (h *BoardHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.board.Workers()

	list := make([]*models.RegisteredWorker, 0, len(workers))
	for _, worker := range workers {
		list = append(list, worker)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"workers": list,
		"count":   len(list),
	})
}

// JobRequest represents a request to post a new job
type JobRequest struct {
	JobID            string                 `json:"job_id,omitempty"`
	Description      string                 `json:"description,omitempty"`
	Tags             []string               `json:"tags"`
	Budget           float64                `json:"budget"`
	DeadlineTS       int64                  `json:"deadline_ts,omitempty"`
	Poster           string                 `json:"poster,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	BidWindowSeconds int                    `json:"bid_window_seconds,omitempty"`
}

// PostJob posts a job and runs its auction in the background. The bid
// window can be a minute long, so the response is a 202 with the job id;
// the outcome is polled via /jobs/{id}/result.
func (h *BoardHandler) PostJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job := &models.JobListing{
		JobID:            req.JobID,
		Description:      req.Description,
		Tags:             req.Tags,
		Budget:           req.Budget,
		DeadlineTS:       req.DeadlineTS,
		Poster:           req.Poster,
		Metadata:         req.Metadata,
		BidWindowSeconds: req.BidWindowSeconds,
		CreatedAt:        time.Now(),
	}
	if job.BidWindowSeconds <= 0 {
		job.BidWindowSeconds = h.defaultWindow
	}
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if err := job.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	go func() {
		if _, err := h.board.PostAndSelect(context.Background(), job, nil); err != nil {
			h.log.Error("auction failed", map[string]interface{}{
				"job_id": job.JobID,
				"error":  err.Error(),
			})
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": job.JobID,
		"status": models.JobStatusOpen,
	})
}

// ListJobs returns all jobs, optionally filtered by ?status=
func (h *BoardHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var jobs []*models.JobListing
	if status := r.URL.Query().Get("status"); status != "" {
		jobs = h.boardJobsByStatus(models.JobStatus(status))
	} else {
		jobs = h.board.ListAllJobs()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *BoardHandler) boardJobsByStatus(status models.JobStatus) []*models.JobListing {
	jobs := []*models.JobListing{}
	for _, job := range h.board.ListAllJobs() {
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// GetJob returns one job by id
func (h *BoardHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.board.GetJob(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(job)
}

// GetJobBids returns the bids recorded for a job
func (h *BoardHandler) GetJobBids(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.board.GetJob(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	bids := h.board.GetBids(id)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": id,
		"bids":   bids,
		"count":  len(bids),
	})
}

// GetJobResult returns the selection outcome; 404 until the auction ends
func (h *BoardHandler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.board.GetResult(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// CancelJob aborts an auction out of band
func (h *BoardHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.board.Cancel(id, "cancelled via API"); err != nil {
		status := http.StatusConflict
		if _, getErr := h.board.GetJob(id); getErr != nil {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": id,
		"status": models.JobStatusCancelled,
	})
}

// Health returns a liveness response
func (h *BoardHandler) Health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"workers": h.board.Registry().Count(),
	})
}
