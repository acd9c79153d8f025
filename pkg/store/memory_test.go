package store

import (
	"errors"
	"testing"

	"github.com/butlernet/jobboard/pkg/models"
)

func newJob(id string) *models.JobListing {
	return &models.JobListing{
		JobID:  id,
		Tags:   []string{"hotel_booking"},
		Budget: 10,
		Status: models.JobStatusOpen,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	st := NewMemoryStore()

	if err := st.CreateJob(newJob("j1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job, err := st.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be stamped")
	}

	if _, err := st.GetJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestCreateJobRejectsDuplicateID(t *testing.T) {
	st := NewMemoryStore()
	st.CreateJob(newJob("j1"))

	if err := st.CreateJob(newJob("j1")); !errors.Is(err, ErrJobExists) {
		t.Errorf("Expected ErrJobExists, got %v", err)
	}
}

func TestUpdateJobStatusEnforcesFSM(t *testing.T) {
	st := NewMemoryStore()
	st.CreateJob(newJob("j1"))

	if err := st.UpdateJobStatus("j1", models.JobStatusSelecting, "window elapsed"); err != nil {
		t.Fatalf("open -> selecting failed: %v", err)
	}
	if err := st.UpdateJobStatus("j1", models.JobStatusAssigned, "winner picked"); err != nil {
		t.Fatalf("selecting -> assigned failed: %v", err)
	}

	// Assigned is terminal; status is monotonic
	if err := st.UpdateJobStatus("j1", models.JobStatusCancelled, "too late"); err == nil {
		t.Error("Expected terminal status to reject further transitions")
	}

	job, _ := st.GetJob("j1")
	if job.Status != models.JobStatusAssigned {
		t.Errorf("Expected status assigned, got %s", job.Status)
	}
	if len(job.StateTransitions) != 2 {
		t.Fatalf("Expected 2 recorded transitions, got %d", len(job.StateTransitions))
	}
	if job.StateTransitions[1].From != models.JobStatusSelecting || job.StateTransitions[1].To != models.JobStatusAssigned {
		t.Errorf("Unexpected transition record %+v", job.StateTransitions[1])
	}
}

func TestGetJobsByStatus(t *testing.T) {
	st := NewMemoryStore()
	st.CreateJob(newJob("j1"))
	st.CreateJob(newJob("j2"))
	st.UpdateJobStatus("j2", models.JobStatusSelecting, "")

	open := st.GetJobsByStatus(models.JobStatusOpen)
	if len(open) != 1 || open[0].JobID != "j1" {
		t.Errorf("Expected only j1 open, got %v", open)
	}
}

// Readers get clones: a job returned by the query surface never changes
// under the reader's feet while the auction keeps transitioning it.
func TestJobReadsReturnClones(t *testing.T) {
	st := NewMemoryStore()
	st.CreateJob(newJob("j1"))

	snapshot, _ := st.GetJob("j1")
	st.UpdateJobStatus("j1", models.JobStatusSelecting, "window elapsed")

	if snapshot.Status != models.JobStatusOpen {
		t.Errorf("Snapshot mutated by a later transition: %s", snapshot.Status)
	}
	if len(snapshot.StateTransitions) != 0 {
		t.Errorf("Snapshot picked up later transitions: %v", snapshot.StateTransitions)
	}

	// Writes through a returned job must not reach the store
	all := st.GetAllJobs()
	all[0].Status = models.JobStatusCancelled
	all[0].Tags[0] = "mutated"

	job, _ := st.GetJob("j1")
	if job.Status != models.JobStatusSelecting {
		t.Errorf("Store status changed through a returned copy: %s", job.Status)
	}
	if job.Tags[0] != "hotel_booking" {
		t.Errorf("Store tags changed through a returned copy: %v", job.Tags)
	}

	byStatus := st.GetJobsByStatus(models.JobStatusSelecting)
	if len(byStatus) != 1 {
		t.Fatalf("Expected 1 selecting job, got %d", len(byStatus))
	}
	byStatus[0].StateTransitions = nil
	job, _ = st.GetJob("j1")
	if len(job.StateTransitions) != 1 {
		t.Error("Store transitions changed through a returned copy")
	}
}

func TestAppendBidAndGetBids(t *testing.T) {
	st := NewMemoryStore()

	st.AppendBid(&models.Bid{BidID: "b1", JobID: "j1", BidderID: "w1", Amount: 8})
	st.AppendBid(&models.Bid{BidID: "b2", JobID: "j1", BidderID: "w2", Amount: 9})
	st.AppendBid(&models.Bid{BidID: "b3", JobID: "j2", BidderID: "w1", Amount: 3})

	bids := st.GetBids("j1")
	if len(bids) != 2 {
		t.Fatalf("Expected 2 bids for j1, got %d", len(bids))
	}

	// Returned slice is a copy
	bids[0].Amount = 999
	if st.GetBids("j1")[0].Amount == 999 {
		t.Error("GetBids must return a copy")
	}

	if got := st.GetBids("unknown"); len(got) != 0 {
		t.Errorf("Expected no bids for unknown job, got %d", len(got))
	}
}

// Duplicate bid ids are a bug in a collaborator, not a marketplace
// condition: the store fails fast.
func TestAppendBidPanicsOnDuplicateID(t *testing.T) {
	st := NewMemoryStore()
	st.AppendBid(&models.Bid{BidID: "b1", JobID: "j1", BidderID: "w1", Amount: 8})

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate bid_id")
		}
	}()
	st.AppendBid(&models.Bid{BidID: "b1", JobID: "j2", BidderID: "w2", Amount: 9})
}

func TestAppendBidPanicsOnEmptyID(t *testing.T) {
	st := NewMemoryStore()

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on empty bid_id")
		}
	}()
	st.AppendBid(&models.Bid{JobID: "j1", BidderID: "w1", Amount: 8})
}

func TestResults(t *testing.T) {
	st := NewMemoryStore()

	if _, err := st.GetResult("j1"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound, got %v", err)
	}

	st.SetResult(&models.BidResult{JobID: "j1", Reason: "no bids received within the window"})
	result, err := st.GetResult("j1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result.Reason == "" {
		t.Error("Expected reason to survive the round trip")
	}
}
