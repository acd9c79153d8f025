package models

import (
	"fmt"
)

// validTransitions maps from-status to allowed to-statuses.
// Assigned, expired and cancelled are terminal: once a job reaches one of
// them its status never changes again.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusOpen: {
		JobStatusSelecting: true, // Open → Selecting (bid window elapsed)
		JobStatusCancelled: true, // Open → Cancelled (poster aborts)
	},
	JobStatusSelecting: {
		JobStatusAssigned:  true, // Selecting → Assigned (winner picked)
		JobStatusExpired:   true, // Selecting → Expired (no acceptable bid)
		JobStatusCancelled: true, // Selecting → Cancelled (poster aborts)
	},
	// Terminal states (no transitions allowed)
	JobStatusAssigned:  {},
	JobStatusExpired:   {},
	JobStatusCancelled: {},
}

// ValidateTransition checks if a status transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether a status permits no further transitions
func IsTerminal(status JobStatus) bool {
	allowed, exists := validTransitions[status]
	return exists && len(allowed) == 0
}
