package models

import (
	"time"

	"github.com/google/uuid"
)

// Proposal status constants.
const (
	ProposalStatusPending  = "pending"
	ProposalStatusApproved = "approved"
	ProposalStatusRejected = "rejected"
)

// Proposal operation constants.
const (
	ProposalOperationCreate = "create"
	ProposalOperationUpdate = "update"
)

// Proposal entity type constants.
const (
	ProposalEntityLead = "lead"
)

// Proposal is a candidate change awaiting human review. Proposals are
// created only by the evaluation gate on model approval, keyed by the
// candidate's canonical URL. The (org_id, dedup_key) unique constraint is
// load-bearing: a duplicate-key insert means another run already proposed
// the same candidate and is treated as success.
type Proposal struct {
	ID       uuid.UUID `json:"id"`
	OrgID    uuid.UUID `json:"org_id"`
	ConfigID uuid.UUID `json:"config_id"`

	EntityType string         `json:"entity_type"`
	Operation  string         `json:"operation"`
	Payload    map[string]any `json:"payload"`

	Status   string `json:"status"`
	DedupKey string `json:"dedup_key"`

	ReviewedBy *string    `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
