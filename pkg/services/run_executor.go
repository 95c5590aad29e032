package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
	"github.com/relaycrm/sourcing-engine/pkg/search"
)

// finalizeTimeout bounds the terminal run-log write once the run's own
// context no longer applies.
const finalizeTimeout = 10 * time.Second

// Searcher is the listings-provider surface the executor depends on.
// Satisfied by *search.Client.
type Searcher interface {
	Search(ctx context.Context, req *search.Request) (*search.Response, error)
}

// RunExecutor drives one sourcing run end to end: validate, log, search,
// probe links, dedup, evaluate, finalize. The caller supplies a context
// already scoped to the config's org.
type RunExecutor struct {
	configRepo   repositories.AutomationConfigRepository
	runLogRepo   repositories.RunLogRepository
	proposalRepo repositories.ProposalRepository
	leadRepo     repositories.LeadRepository

	searcher  Searcher
	validator *LinkValidator
	dedup     *Deduplicator
	gate      *EvaluationGate
	healer    *QueryHealer

	logger *zap.Logger
}

// NewRunExecutor creates a RunExecutor.
func NewRunExecutor(
	configRepo repositories.AutomationConfigRepository,
	runLogRepo repositories.RunLogRepository,
	proposalRepo repositories.ProposalRepository,
	leadRepo repositories.LeadRepository,
	searcher Searcher,
	validator *LinkValidator,
	dedup *Deduplicator,
	gate *EvaluationGate,
	healer *QueryHealer,
	logger *zap.Logger,
) *RunExecutor {
	return &RunExecutor{
		configRepo:   configRepo,
		runLogRepo:   runLogRepo,
		proposalRepo: proposalRepo,
		leadRepo:     leadRepo,
		searcher:     searcher,
		validator:    validator,
		dedup:        dedup,
		gate:         gate,
		healer:       healer,
		logger:       logger.Named("run_executor"),
	}
}

// Execute runs the sourcing pipeline for one config. Validation failures
// are returned before any run log exists; once a run log is started, every
// exit path finalizes it exactly once.
func (e *RunExecutor) Execute(ctx context.Context, config *models.AutomationConfig) error {
	logger := e.logger.With(
		zap.String("config_id", config.ID.String()),
		zap.String("org_id", config.OrgID.String()))

	if err := e.validate(ctx, config); err != nil {
		return err
	}

	proceed, err := e.checkTarget(ctx, config, logger)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	executedQuery := buildExecutedQuery(config)

	run, err := e.runLogRepo.Start(ctx, config.OrgID, config.ID, executedQuery)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	outcome, runErr := e.pipeline(ctx, config, executedQuery, logger)
	if runErr != nil {
		outcome.Status = models.RunStatusFailed
		outcome.ErrorDetail = runErr.Error()
	} else {
		outcome.Status = models.RunStatusCompleted
	}

	// The terminal write must land even when the run itself was cancelled
	// (scheduler shutdown cancels every in-flight run's context), or the
	// row would stay in running state forever. Detaching keeps the tenant
	// scope while dropping the cancellation.
	finalizeCtx, cancelFinalize := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancelFinalize()

	if err := e.finalize(finalizeCtx, config, run, outcome); err != nil {
		logger.Error("failed to finalize run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return runErr
	}

	logger.Info("run completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("prospects_found", outcome.ProspectsFound),
		zap.Int("duplicates", outcome.DuplicateCount),
		zap.Int("proposals_created", outcome.ProposalsCreated))

	run.Status = models.RunStatusCompleted
	run.ProposalsCreated = outcome.ProposalsCreated
	e.healer.MaybeHeal(ctx, config, run)

	return nil
}

// validate fails fast on misconfiguration before any run log is written.
func (e *RunExecutor) validate(ctx context.Context, config *models.AutomationConfig) error {
	if !config.Enabled {
		return apperrors.ErrConfigDisabled
	}
	if strings.TrimSpace(config.SearchQuery) == "" {
		return fmt.Errorf("config %s has an empty search query", config.ID)
	}

	if config.TargetContactID != nil {
		exists, err := e.leadRepo.ContactExists(ctx, *config.TargetContactID)
		if err != nil {
			return fmt.Errorf("failed to check target contact: %w", err)
		}
		if !exists {
			return apperrors.ErrTargetEntityMissing
		}
	}

	return nil
}

// checkTarget applies the proposal-target policy before a run starts.
// Pause mode skips the run while the live pending+approved count is at or
// above target; disable mode at this point flips the config off.
func (e *RunExecutor) checkTarget(ctx context.Context, config *models.AutomationConfig, logger *zap.Logger) (bool, error) {
	if config.TargetProposalCount <= 0 {
		return true, nil
	}

	total, err := e.proposalRepo.CountByStatus(ctx, config.ID,
		models.ProposalStatusPending, models.ProposalStatusApproved)
	if err != nil {
		return false, fmt.Errorf("failed to count proposals: %w", err)
	}
	if total < config.TargetProposalCount {
		return true, nil
	}

	if config.DisableOnTarget {
		logger.Info("proposal target already met, disabling config",
			zap.Int("total", total),
			zap.Int("target", config.TargetProposalCount))
		if err := e.configRepo.SetEnabled(ctx, config.ID, false); err != nil {
			return false, fmt.Errorf("failed to disable config at target: %w", err)
		}
		return false, nil
	}

	logger.Info("proposal target met, skipping run",
		zap.Int("total", total),
		zap.Int("target", config.TargetProposalCount))
	return false, nil
}

// pipeline runs search through evaluation and accumulates the outcome.
func (e *RunExecutor) pipeline(ctx context.Context, config *models.AutomationConfig, executedQuery string, logger *zap.Logger) (repositories.RunOutcome, error) {
	var outcome repositories.RunOutcome

	resp, err := e.searcher.Search(ctx, &search.Request{
		Query:            executedQuery,
		Location:         config.Location,
		PostedWithinDays: config.PostedWithinDays,
	})
	if err != nil {
		return outcome, fmt.Errorf("search failed: %w", err)
	}

	outcome.ProspectsFound = len(resp.Candidates)
	outcome.RelatedSearches = resp.RelatedSearches

	reachable := e.validator.Validate(ctx, resp.Candidates)

	fresh, duplicates, err := e.dedup.Filter(ctx, reachable)
	if err != nil {
		return outcome, fmt.Errorf("deduplication failed: %w", err)
	}
	outcome.DuplicateCount = duplicates

	created, err := e.gate.Evaluate(ctx, config, fresh)
	outcome.ProposalsCreated = created
	if err != nil {
		return outcome, fmt.Errorf("evaluation failed: %w", err)
	}

	return outcome, nil
}

// finalize writes the terminal run state. When this run pushes a
// disable-on-target config over its target, the finalization and the
// disable commit in one transaction so a crash cannot leave the config
// enabled with the target met but the run still marked running.
func (e *RunExecutor) finalize(ctx context.Context, config *models.AutomationConfig, run *models.RunLog, outcome repositories.RunOutcome) error {
	disable, err := e.shouldDisable(ctx, config, outcome)
	if err != nil {
		return err
	}

	if !disable {
		return e.runLogRepo.Finalize(ctx, run.ID, outcome)
	}

	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := e.runLogRepo.FinalizeTx(ctx, tx, run.ID, outcome); err != nil {
		return err
	}
	if err := e.configRepo.SetEnabledTx(ctx, tx, config.ID, false); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}

	e.logger.Info("proposal target reached, config disabled",
		zap.String("config_id", config.ID.String()),
		zap.Int("target", config.TargetProposalCount))

	return nil
}

// shouldDisable reports whether this completed run pushed a
// disable-on-target config to its target.
func (e *RunExecutor) shouldDisable(ctx context.Context, config *models.AutomationConfig, outcome repositories.RunOutcome) (bool, error) {
	if !config.DisableOnTarget || config.TargetProposalCount <= 0 {
		return false, nil
	}
	if outcome.Status != models.RunStatusCompleted || outcome.ProposalsCreated == 0 {
		return false, nil
	}

	total, err := e.proposalRepo.CountByStatus(ctx, config.ID,
		models.ProposalStatusPending, models.ProposalStatusApproved)
	if err != nil {
		return false, fmt.Errorf("failed to count proposals: %w", err)
	}

	return total >= config.TargetProposalCount, nil
}

// buildExecutedQuery composes the query actually sent to the provider:
// the configured query plus any document-derived terms.
func buildExecutedQuery(config *models.AutomationConfig) string {
	query := strings.TrimSpace(config.SearchQuery)
	for _, term := range config.DocumentTerms {
		term = strings.TrimSpace(term)
		if term == "" || strings.Contains(strings.ToLower(query), strings.ToLower(term)) {
			continue
		}
		query += " " + term
	}
	return query
}
