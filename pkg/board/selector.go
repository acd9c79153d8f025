package board

import (
	"fmt"
	"sort"

	"github.com/butlernet/jobboard/pkg/models"
)

// Select picks exactly one winner (or none) from the collected bids.
//
// It is a pure function: no side effects, no clock, no randomness. Eligible
// bids (amount within budget) are ordered ascending by amount, then by
// submission time, then by bid id, so any two runs over the same bid set
// pick the identical winner. The bid id is the documented final tie-break
// for bids landing in the same instant.
func Select(job *models.JobListing, bids []models.Bid) *models.BidResult {
	if job == nil {
		panic("Select called with nil job")
	}

	allBids := make([]models.Bid, len(bids))
	copy(allBids, bids)

	if len(bids) == 0 {
		return &models.BidResult{
			JobID:   job.JobID,
			AllBids: allBids,
			Reason:  "no bids received within the window",
		}
	}

	eligible := []models.Bid{}
	cheapest := bids[0].Amount
	for _, b := range bids {
		if b.Amount < cheapest {
			cheapest = b.Amount
		}
		if b.Amount <= job.Budget {
			eligible = append(eligible, b)
		}
	}

	if len(eligible) == 0 {
		return &models.BidResult{
			JobID:   job.JobID,
			AllBids: allBids,
			Reason: fmt.Sprintf("all %d bid(s) exceeded budget (cheapest: %.2f vs budget %.2f)",
				len(bids), cheapest, job.Budget),
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Amount != eligible[j].Amount {
			return eligible[i].Amount < eligible[j].Amount
		}
		if !eligible[i].SubmittedAt.Equal(eligible[j].SubmittedAt) {
			return eligible[i].SubmittedAt.Before(eligible[j].SubmittedAt)
		}
		return eligible[i].BidID < eligible[j].BidID
	})

	winner := eligible[0]
	return &models.BidResult{
		JobID:      job.JobID,
		WinningBid: &winner,
		AllBids:    allBids,
		Reason: fmt.Sprintf("lowest price %.2f from worker %s (%d bid(s) received, %d within budget)",
			winner.Amount, winner.BidderID, len(bids), len(eligible)),
	}
}
