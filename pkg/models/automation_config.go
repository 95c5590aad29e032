package models

import (
	"time"

	"github.com/google/uuid"
)

// AutomationConfig holds the per-user lead-sourcing automation settings.
// There is at most one config per (org, user). The scheduler mutates run
// bookkeeping fields; everything else is owned by the human operator.
type AutomationConfig struct {
	ID     uuid.UUID `json:"id"`
	OrgID  uuid.UUID `json:"org_id"`
	UserID uuid.UUID `json:"user_id"`

	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`

	// DisableOnTarget selects what happens when the proposal target is
	// reached: true flips Enabled off (manual re-enable required), false
	// keeps the config enabled but runs are skipped until the live
	// pending+approved count drops back below target.
	DisableOnTarget     bool `json:"disable_on_target"`
	TargetProposalCount int  `json:"target_proposal_count"`

	SearchQuery string `json:"search_query"`
	Criteria    string `json:"criteria"`

	// SuggestedQuery is written by the query healer and is advisory only.
	// It never replaces SearchQuery without an explicit acceptance action.
	SuggestedQuery *string `json:"suggested_query,omitempty"`

	Location         string `json:"location,omitempty"`
	PostedWithinDays int    `json:"posted_within_days,omitempty"`

	// TargetContactID personalizes the query; the run fails fast if the
	// referenced contact has been deleted.
	TargetContactID *uuid.UUID `json:"target_contact_id,omitempty"`

	// DocumentTerms are keywords derived from the user's uploaded documents
	// by the (out of scope) document layer. Consumed, never produced, here.
	DocumentTerms []string `json:"document_terms,omitempty"`

	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Due reports whether the config should be considered by the scheduler at t.
func (c *AutomationConfig) Due(t time.Time) bool {
	if !c.Enabled {
		return false
	}
	return c.NextRunAt == nil || !c.NextRunAt.After(t)
}

// Interval returns the run interval as a duration.
func (c *AutomationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
