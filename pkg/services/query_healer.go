package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/llm"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/prompts"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

// pauseSentinel is the model's way of recommending suspension instead of
// another query variant when the market looks exhausted.
const pauseSentinel = "PAUSE"

// QueryHealer drafts a replacement search query when a config's runs stop
// producing proposals. The suggestion is advisory: it lands in a separate
// field and never replaces the active query without explicit acceptance.
type QueryHealer struct {
	completer  Completer
	configRepo repositories.AutomationConfigRepository
	analytics  *AnalyticsService
	logger     *zap.Logger
}

// NewQueryHealer creates a QueryHealer.
func NewQueryHealer(completer Completer, configRepo repositories.AutomationConfigRepository, analytics *AnalyticsService, logger *zap.Logger) *QueryHealer {
	return &QueryHealer{
		completer:  completer,
		configRepo: configRepo,
		analytics:  analytics,
		logger:     logger.Named("query_healer"),
	}
}

// MaybeHeal inspects a just-finalized run and, when the config has gone
// enough consecutive completed runs with zero proposals, asks the model for
// a replacement query and stores it as the pending suggestion. Healing is
// best effort: any failure is logged and swallowed so it never fails the
// run that triggered it.
func (h *QueryHealer) MaybeHeal(ctx context.Context, config *models.AutomationConfig, run *models.RunLog) {
	if run.Status != models.RunStatusCompleted || run.ProposalsCreated > 0 {
		return
	}
	if config.SuggestedQuery != nil {
		// An earlier suggestion is still awaiting review.
		return
	}

	analytics, err := h.analytics.Compute(ctx, config.ID)
	if err != nil {
		h.logger.Warn("skipping heal, analytics unavailable",
			zap.String("config_id", config.ID.String()),
			zap.Error(err))
		return
	}

	if analytics.ConsecutiveZeroRuns < prompts.PressureTierMildMin {
		return
	}

	suggestion, err := h.draftSuggestion(ctx, config, analytics)
	if err != nil {
		h.logger.Warn("query healing failed",
			zap.String("config_id", config.ID.String()),
			zap.Error(err))
		return
	}
	if suggestion == "" {
		return
	}

	if err := h.configRepo.ProposeSuggestedQuery(ctx, config.ID, suggestion); err != nil {
		if errors.Is(err, apperrors.ErrSuggestionPending) {
			h.logger.Debug("suggestion already pending, discarding draft",
				zap.String("config_id", config.ID.String()))
			return
		}
		h.logger.Warn("failed to store query suggestion",
			zap.String("config_id", config.ID.String()),
			zap.Error(err))
		return
	}

	h.logger.Info("stored replacement query suggestion",
		zap.String("config_id", config.ID.String()),
		zap.Int("zero_run_streak", analytics.ConsecutiveZeroRuns),
		zap.Bool("market_exhausted", analytics.MarketExhausted),
		zap.String("suggestion", suggestion))
}

// draftSuggestion makes the model call and normalizes its reply. An empty
// return with nil error means the model recommended pausing instead.
func (h *QueryHealer) draftSuggestion(ctx context.Context, config *models.AutomationConfig, analytics *models.RunAnalytics) (string, error) {
	output, err := h.completer.Complete(ctx, llm.ChatRequest{
		SystemPrompt: prompts.QueryHealingSystemPrompt,
		Prompt:       prompts.BuildQueryHealingPrompt(config.SearchQuery, config.Criteria, analytics),
	})
	if err != nil {
		return "", err
	}

	suggestion := normalizeSuggestion(output)
	if suggestion == "" {
		return "", fmt.Errorf("model returned no usable query")
	}

	if strings.EqualFold(suggestion, pauseSentinel) {
		h.logger.Warn("model recommends pausing this automation",
			zap.String("config_id", config.ID.String()),
			zap.String("query", config.SearchQuery))
		return "", nil
	}

	if strings.EqualFold(suggestion, strings.TrimSpace(config.SearchQuery)) {
		return "", fmt.Errorf("model returned the current query unchanged")
	}

	return suggestion, nil
}

// normalizeSuggestion reduces model output to a single clean query line.
func normalizeSuggestion(output string) string {
	output = strings.TrimSpace(output)
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		output = output[:idx]
	}
	output = strings.Trim(output, "`\"' ")
	return strings.TrimSpace(output)
}
