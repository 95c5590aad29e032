package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

func TestDeduplicator_Filter(t *testing.T) {
	proposalRepo := &mockProposalRepo{
		ListDedupKeysFunc: func(ctx context.Context, statuses ...string) (map[string]struct{}, error) {
			return map[string]struct{}{
				models.CanonicalURL("https://example.com/jobs/1"): {},
				models.CanonicalURL("https://example.com/jobs/2"): {},
			}, nil
		},
	}
	leadRepo := &mockLeadRepo{
		ListSourceURLsFunc: func(ctx context.Context) ([]string, error) {
			return []string{"https://www.example.com/jobs/3/"}, nil
		},
	}

	dedup := NewDeduplicator(proposalRepo, leadRepo, zap.NewNop())

	candidates := []models.Candidate{
		{URL: "https://example.com/jobs/1"},                 // existing proposal
		{URL: "https://example.com/jobs/2?utm_source=mail"}, // existing proposal, noisy URL
		{URL: "https://example.com/jobs/3"},                 // existing lead
		{URL: "https://example.com/jobs/4"},                 // fresh
		{URL: "https://example.com/jobs/5"},                 // fresh
	}

	fresh, duplicates, err := dedup.Filter(context.Background(), candidates)
	require.NoError(t, err)

	assert.Equal(t, 3, duplicates)
	require.Len(t, fresh, 2)
	assert.Equal(t, "https://example.com/jobs/4", fresh[0].URL)
	assert.Equal(t, "https://example.com/jobs/5", fresh[1].URL)
}

func TestDeduplicator_Filter_WithinBatch(t *testing.T) {
	dedup := NewDeduplicator(&mockProposalRepo{}, &mockLeadRepo{}, zap.NewNop())

	candidates := []models.Candidate{
		{URL: "https://example.com/jobs/1"},
		{URL: "https://www.example.com/jobs/1/"}, // same listing, different spelling
	}

	fresh, duplicates, err := dedup.Filter(context.Background(), candidates)
	require.NoError(t, err)

	assert.Equal(t, 1, duplicates)
	require.Len(t, fresh, 1)
}

func TestDeduplicator_Filter_Empty(t *testing.T) {
	dedup := NewDeduplicator(&mockProposalRepo{}, &mockLeadRepo{}, zap.NewNop())

	fresh, duplicates, err := dedup.Filter(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, duplicates)
	assert.Empty(t, fresh)
}
