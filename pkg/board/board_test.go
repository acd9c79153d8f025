package board

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/butlernet/jobboard/pkg/models"
	"github.com/butlernet/jobboard/pkg/registry"
	"github.com/butlernet/jobboard/pkg/store"
)

func newTestBoard(t *testing.T) (*JobBoard, *registry.WorkerRegistry) {
	t.Helper()
	reg := registry.New()
	return NewJobBoard(reg, store.NewMemoryStore(), nil), reg
}

func postJob(id string, budget float64, tags ...string) *models.JobListing {
	return &models.JobListing{
		JobID:            id,
		Tags:             tags,
		Budget:           budget,
		BidWindowSeconds: 1,
	}
}

func biddingWorker(id string, tags []string, bidID string, amount float64) *models.RegisteredWorker {
	return &models.RegisteredWorker{
		WorkerID:      id,
		Tags:          tags,
		MaxConcurrent: 1,
		Evaluator: func(ctx context.Context, job *models.JobListing) (*models.Bid, error) {
			return &models.Bid{BidID: bidID, JobID: job.JobID, BidderID: id, Amount: amount}, nil
		},
	}
}

func TestPostAndSelectNoMatchingWorkers(t *testing.T) {
	jb, _ := newTestBoard(t)

	result, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), nil)
	if err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}

	if result.WinningBid != nil {
		t.Errorf("Expected no winner, got %+v", result.WinningBid)
	}
	if !strings.Contains(result.Reason, "no bids") {
		t.Errorf("Reason should mention no bids: %q", result.Reason)
	}

	job, err := jb.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != models.JobStatusExpired {
		t.Errorf("Expected status expired, got %s", job.Status)
	}
}

func TestPostAndSelectPicksCheapestBid(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0))
	reg.Register(biddingWorker("w2", []string{"hotel_booking"}, "b2", 6.5))

	var acceptedBid *models.Bid
	accept := func(ctx context.Context, bid *models.Bid) error {
		acceptedBid = bid
		return nil
	}

	result, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), accept)
	if err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}

	if result.WinningBid == nil || result.WinningBid.BidderID != "w2" {
		t.Fatalf("Expected w2 to win with 6.5, got %+v", result.WinningBid)
	}
	if len(result.AllBids) != 2 {
		t.Errorf("Expected 2 bids reported, got %d", len(result.AllBids))
	}
	if acceptedBid == nil || acceptedBid.BidID != "b2" {
		t.Errorf("Expected accept hook invoked with winning bid, got %+v", acceptedBid)
	}

	job, _ := jb.GetJob("j1")
	if job.Status != models.JobStatusAssigned {
		t.Errorf("Expected status assigned, got %s", job.Status)
	}
	if got := jb.GetBids("j1"); len(got) != 2 {
		t.Errorf("Expected 2 stored bids, got %d", len(got))
	}

	stored, err := jb.GetResult("j1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if stored.WinningBid == nil || stored.WinningBid.BidID != "b2" {
		t.Errorf("Stored result disagrees with returned result: %+v", stored.WinningBid)
	}
}

// Settlement failures are the caller's concern: logged, never rolled back
func TestOnChainAcceptFailureKeepsAssignment(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0))

	accept := func(ctx context.Context, bid *models.Bid) error {
		return fmt.Errorf("chain rejected tx")
	}

	result, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), accept)
	if err != nil {
		t.Fatalf("Settlement failure must not fail the selection: %v", err)
	}
	if result.WinningBid == nil {
		t.Fatal("Expected a winner despite settlement failure")
	}

	job, _ := jb.GetJob("j1")
	if job.Status != models.JobStatusAssigned {
		t.Errorf("Expected assignment to stand, got %s", job.Status)
	}
}

func TestOnChainAcceptPanicIsIsolated(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0))

	accept := func(ctx context.Context, bid *models.Bid) error {
		panic("settlement adapter bug")
	}

	if _, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), accept); err != nil {
		t.Fatalf("Accept hook panic must not fail the selection: %v", err)
	}
}

func TestPostAndSelectAllBidsOverBudget(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 6.0))

	result, err := jb.PostAndSelect(context.Background(), postJob("j1", 5, "hotel_booking"), nil)
	if err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}

	if result.WinningBid != nil {
		t.Errorf("Expected no winner, got %+v", result.WinningBid)
	}
	if !strings.Contains(result.Reason, "exceeded budget") || !strings.Contains(result.Reason, "6.0") {
		t.Errorf("Unexpected reason: %q", result.Reason)
	}

	job, _ := jb.GetJob("j1")
	if job.Status != models.JobStatusExpired {
		t.Errorf("Expected status expired, got %s", job.Status)
	}
}

func TestPostAndSelectRejectsContractViolations(t *testing.T) {
	jb, _ := newTestBoard(t)

	if _, err := jb.PostAndSelect(context.Background(), nil, nil); err == nil {
		t.Error("Expected error for nil job")
	}
	if _, err := jb.PostAndSelect(context.Background(), &models.JobListing{JobID: "j1"}, nil); err == nil {
		t.Error("Expected error for malformed job")
	}

	jb.PostAndSelect(context.Background(), postJob("dup", 10, "hotel_booking"), nil)
	if _, err := jb.PostAndSelect(context.Background(), postJob("dup", 10, "hotel_booking"), nil); err == nil {
		t.Error("Expected error for duplicate job id")
	}
}

func TestPostAndSelectGeneratesJobID(t *testing.T) {
	jb, _ := newTestBoard(t)
	job := &models.JobListing{Tags: []string{"hotel_booking"}, Budget: 10, BidWindowSeconds: 1}

	result, err := jb.PostAndSelect(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}
	if job.JobID == "" || result.JobID != job.JobID {
		t.Errorf("Expected generated job id, got %q / %q", job.JobID, result.JobID)
	}
}

// Two auctions with disjoint tags and workers proceed independently
func TestConcurrentAuctionsDoNotInterfere(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("hotel-w", []string{"hotel_booking"}, "b-hotel", 8.0))
	reg.Register(biddingWorker("flight-w", []string{"flight_booking"}, "b-flight", 4.0))

	var wg sync.WaitGroup
	results := make([]*models.BidResult, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = jb.PostAndSelect(context.Background(), postJob("j-hotel", 10, "hotel_booking"), nil)
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = jb.PostAndSelect(context.Background(), postJob("j-flight", 10, "flight_booking"), nil)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Auction %d failed: %v", i, err)
		}
	}

	if results[0].WinningBid == nil || results[0].WinningBid.BidderID != "hotel-w" {
		t.Errorf("Hotel auction got wrong winner: %+v", results[0].WinningBid)
	}
	if results[1].WinningBid == nil || results[1].WinningBid.BidderID != "flight-w" {
		t.Errorf("Flight auction got wrong winner: %+v", results[1].WinningBid)
	}
	if len(results[0].AllBids) != 1 || len(results[1].AllBids) != 1 {
		t.Error("Bids leaked between concurrent auctions")
	}
}

// Readers polling the query surface while auctions transition jobs get
// stable snapshots, and subscribing mid-flight is safe. Run with -race.
func TestQuerySurfaceSafeDuringAuctions(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(&models.RegisteredWorker{
		WorkerID:      "w1",
		Tags:          []string{"hotel_booking"},
		MaxConcurrent: 16,
		Evaluator: func(ctx context.Context, job *models.JobListing) (*models.Bid, error) {
			return &models.Bid{BidID: "bid-" + job.JobID, BidderID: "w1", Amount: 5}, nil
		},
	})

	stop := make(chan struct{})
	var readers sync.WaitGroup

	readers.Add(1)
	go func() {
		defer readers.Done()
		enc := json.NewEncoder(io.Discard)
		for {
			select {
			case <-stop:
				return
			default:
			}
			enc.Encode(jb.ListAllJobs())
			if job, err := jb.GetJob("j-0"); err == nil {
				enc.Encode(job)
			}
		}
	}()

	readers.Add(1)
	go func() {
		defer readers.Done()
		for i := 0; i < 20; i++ {
			jb.Subscribe(func(Event) {})
			time.Sleep(time.Millisecond)
		}
	}()

	var auctions sync.WaitGroup
	for i := 0; i < 8; i++ {
		auctions.Add(1)
		go func(i int) {
			defer auctions.Done()
			if _, err := jb.PostAndSelect(context.Background(), postJob(fmt.Sprintf("j-%d", i), 10, "hotel_booking"), nil); err != nil {
				t.Errorf("Auction j-%d failed: %v", i, err)
			}
		}(i)
	}
	auctions.Wait()
	close(stop)
	readers.Wait()

	jobs := jb.ListAllJobs()
	if len(jobs) != 8 {
		t.Fatalf("Expected 8 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != models.JobStatusAssigned {
			t.Errorf("Job %s ended in %s, expected assigned", job.JobID, job.Status)
		}
	}
}

func TestCancelDuringBidWindow(t *testing.T) {
	jb, reg := newTestBoard(t)

	// One worker that bids only after a long think, keeping the window open
	reg.Register(&models.RegisteredWorker{
		WorkerID:      "slow",
		Tags:          []string{"hotel_booking"},
		MaxConcurrent: 1,
		Evaluator: func(ctx context.Context, job *models.JobListing) (*models.Bid, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	job := postJob("j1", 10, "hotel_booking")
	job.BidWindowSeconds = 2

	done := make(chan *models.BidResult, 1)
	go func() {
		result, _ := jb.PostAndSelect(context.Background(), job, nil)
		done <- result
	}()

	// Let the posting land, then cancel out of band
	time.Sleep(200 * time.Millisecond)
	if err := jb.Cancel("j1", "poster changed their mind"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	result := <-done
	if result.WinningBid != nil {
		t.Errorf("Cancelled auction must not pick a winner, got %+v", result.WinningBid)
	}
	if !strings.Contains(result.Reason, "cancelled") {
		t.Errorf("Unexpected reason: %q", result.Reason)
	}

	jobAfter, _ := jb.GetJob("j1")
	if jobAfter.Status != models.JobStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", jobAfter.Status)
	}
}

func TestCancelRejectedOnTerminalJob(t *testing.T) {
	jb, _ := newTestBoard(t)
	jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), nil) // expires

	if err := jb.Cancel("j1", ""); err == nil {
		t.Error("Expected cancel of an expired job to fail")
	}
	if err := jb.Cancel("missing", ""); err == nil {
		t.Error("Expected cancel of an unknown job to fail")
	}
}

func TestListenersSeeStatusTransitions(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0))

	var mu sync.Mutex
	var seen []models.JobStatus
	jb.Subscribe(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev.To)
		mu.Unlock()
	})
	// A broken listener must not affect the auction
	jb.Subscribe(func(ev Event) {
		panic("listener bug")
	})

	if _, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), nil); err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []models.JobStatus{models.JobStatusOpen, models.JobStatusSelecting, models.JobStatusAssigned}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d events, got %v", len(want), seen)
	}
	for i, status := range want {
		if seen[i] != status {
			t.Errorf("Event %d: expected %s, got %s", i, status, seen[i])
		}
	}
}

func TestExecutionHandoff(t *testing.T) {
	jb, reg := newTestBoard(t)
	jb.EnableExecutionHandoff()

	executed := make(chan string, 1)
	worker := biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0)
	worker.Executor = func(ctx context.Context, job *models.JobListing, bid *models.Bid) (*models.ExecutionResult, error) {
		executed <- job.JobID
		return &models.ExecutionResult{JobID: job.JobID, WorkerID: "w1", Success: true}, nil
	}
	reg.Register(worker)

	if _, err := jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), nil); err != nil {
		t.Fatalf("PostAndSelect failed: %v", err)
	}

	select {
	case jobID := <-executed:
		if jobID != "j1" {
			t.Errorf("Executor got wrong job: %s", jobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Executor was never invoked")
	}
}

func TestQuerySurface(t *testing.T) {
	jb, reg := newTestBoard(t)
	reg.Register(biddingWorker("w1", []string{"hotel_booking"}, "b1", 8.0))
	jb.PostAndSelect(context.Background(), postJob("j1", 10, "hotel_booking"), nil)

	if len(jb.ListAllJobs()) != 1 {
		t.Errorf("Expected 1 job, got %d", len(jb.ListAllJobs()))
	}
	if len(jb.ListOpenJobs()) != 0 {
		t.Errorf("Expected no open jobs after the auction, got %d", len(jb.ListOpenJobs()))
	}

	workers := jb.Workers()
	if len(workers) != 1 {
		t.Fatalf("Expected 1 worker, got %d", len(workers))
	}
	delete(workers, "w1")
	if len(jb.Workers()) != 1 {
		t.Error("Workers() must return a snapshot copy")
	}
}
