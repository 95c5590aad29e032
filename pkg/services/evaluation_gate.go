package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/jsonutil"
	"github.com/relaycrm/sourcing-engine/pkg/llm"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/prompts"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

// Completer is the single model call the gate and the healer depend on.
// Satisfied by *llm.Promoter.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// EvaluationGate judges each candidate against the config's criteria with
// one model call and persists a proposal for every approval. No candidate
// reaches the CRM without passing through here.
type EvaluationGate struct {
	completer    Completer
	proposalRepo repositories.ProposalRepository
	logger       *zap.Logger
}

// NewEvaluationGate creates an EvaluationGate.
func NewEvaluationGate(completer Completer, proposalRepo repositories.ProposalRepository, logger *zap.Logger) *EvaluationGate {
	return &EvaluationGate{
		completer:    completer,
		proposalRepo: proposalRepo,
		logger:       logger.Named("evaluation_gate"),
	}
}

// verdict is the model's structured reply.
type verdict struct {
	Approve json.RawMessage `json:"approve"`
	Reason  json.RawMessage `json:"reason"`
}

// Evaluate runs every candidate through the model and creates a pending
// proposal for each approval. Returns the number of proposals actually
// inserted; a dedup conflict means another run already proposed the same
// candidate and is not counted, not failed. A model transport error aborts
// the remaining candidates so the run can fail loudly.
func (g *EvaluationGate) Evaluate(ctx context.Context, config *models.AutomationConfig, candidates []models.Candidate) (int, error) {
	created := 0

	for i := range candidates {
		candidate := &candidates[i]

		approved, reason, err := g.judge(ctx, config.Criteria, candidate)
		if err != nil {
			return created, fmt.Errorf("failed to evaluate candidate %q: %w", candidate.URL, err)
		}

		if !approved {
			g.logger.Debug("candidate rejected",
				zap.String("url", candidate.URL),
				zap.String("reason", reason))
			continue
		}

		proposal := &models.Proposal{
			OrgID:      config.OrgID,
			ConfigID:   config.ID,
			EntityType: models.ProposalEntityLead,
			Operation:  models.ProposalOperationCreate,
			Payload:    proposalPayload(candidate, reason),
			DedupKey:   candidate.DedupKey(),
		}

		if _, err := g.proposalRepo.Create(ctx, proposal); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				g.logger.Debug("candidate already proposed by a concurrent run",
					zap.String("dedup_key", proposal.DedupKey))
				continue
			}
			return created, fmt.Errorf("failed to create proposal: %w", err)
		}

		created++
	}

	return created, nil
}

// judge makes one model call and parses the structured verdict. An
// unparseable reply is treated as a rejection rather than an error: a
// confused model should not fail the whole run.
func (g *EvaluationGate) judge(ctx context.Context, criteria string, candidate *models.Candidate) (bool, string, error) {
	output, err := g.completer.Complete(ctx, llm.ChatRequest{
		SystemPrompt: prompts.EvaluationSystemPrompt,
		Prompt:       prompts.BuildEvaluationPrompt(criteria, candidate),
	})
	if err != nil {
		return false, "", err
	}

	var v verdict
	if err := jsonutil.ExtractObject(output, &v); err != nil {
		g.logger.Warn("unparseable evaluation verdict, treating as rejection",
			zap.String("url", candidate.URL),
			zap.String("output", truncate(output, 200)))
		return false, "", nil
	}

	return jsonutil.FlexibleBoolValue(v.Approve), jsonutil.FlexibleStringValue(v.Reason), nil
}

// proposalPayload shapes the candidate into the lead draft a reviewer sees.
func proposalPayload(candidate *models.Candidate, reason string) map[string]any {
	payload := map[string]any{
		"title":      candidate.Title,
		"source_url": candidate.URL,
	}
	if candidate.Organization != "" {
		payload["company"] = candidate.Organization
	}
	if candidate.Snippet != "" {
		payload["summary"] = candidate.Snippet
	}
	if candidate.PostedDate != nil {
		payload["posted_date"] = candidate.PostedDate.Format("2006-01-02")
	}
	if reason != "" {
		payload["qualification_reason"] = reason
	}
	return payload
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
