package models

import (
	"time"

	"github.com/google/uuid"
)

// Run status constants. A run log is created in running state and finalized
// exactly once into a terminal state. Finalized rows are never mutated.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunLog records a single execution attempt of an automation config.
// Append-only: it is the substrate the analytics engine reads.
type RunLog struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"org_id"`
	ConfigID uuid.UUID `json:"config_id"`

	Status        string `json:"status"`
	ExecutedQuery string `json:"executed_query"`

	ProspectsFound   int `json:"prospects_found"`
	DuplicateCount   int `json:"duplicate_count"`
	ProposalsCreated int `json:"proposals_created"`

	RelatedSearches []string `json:"related_searches,omitempty"`
	ErrorDetail     string   `json:"error_detail,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// DuplicateRate returns duplicates / prospects seen pre-filter, or 0 for an
// empty run. This is the primary market-exhaustion signal.
func (r *RunLog) DuplicateRate() float64 {
	if r.ProspectsFound == 0 {
		return 0
	}
	return float64(r.DuplicateCount) / float64(r.ProspectsFound)
}

// ConversionRate returns proposals created per prospect found.
func (r *RunLog) ConversionRate() float64 {
	if r.ProspectsFound == 0 {
		return 0
	}
	return float64(r.ProposalsCreated) / float64(r.ProspectsFound)
}
