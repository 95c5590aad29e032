package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

// Deduplicator removes candidates the org has already seen. Three sources
// feed the exclusion set, all keyed by canonical URL: existing proposals in
// any status, existing CRM leads, and earlier candidates in the same batch.
type Deduplicator struct {
	proposalRepo repositories.ProposalRepository
	leadRepo     repositories.LeadRepository
	logger       *zap.Logger
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(proposalRepo repositories.ProposalRepository, leadRepo repositories.LeadRepository, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{
		proposalRepo: proposalRepo,
		leadRepo:     leadRepo,
		logger:       logger.Named("deduplicator"),
	}
}

// Filter returns the candidates not present in the exclusion set, plus the
// number filtered out. The duplicate count feeds the run log and, through
// it, the market-exhaustion signal.
func (d *Deduplicator) Filter(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	seen, err := d.proposalRepo.ListDedupKeys(ctx,
		models.ProposalStatusPending,
		models.ProposalStatusApproved,
		models.ProposalStatusRejected,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load proposal dedup keys: %w", err)
	}

	leadURLs, err := d.leadRepo.ListSourceURLs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load lead source URLs: %w", err)
	}
	for _, u := range leadURLs {
		seen[models.CanonicalURL(u)] = struct{}{}
	}

	var fresh []models.Candidate
	duplicates := 0
	for _, candidate := range candidates {
		key := candidate.DedupKey()
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, candidate)
	}

	if duplicates > 0 {
		d.logger.Info("filtered duplicate candidates",
			zap.Int("candidates", len(candidates)),
			zap.Int("duplicates", duplicates))
	}

	return fresh, duplicates, nil
}
