package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// AutomationConfigRepository provides data access for sourcing automation configs.
type AutomationConfigRepository interface {
	// GetByID returns a single config by ID.
	GetByID(ctx context.Context, configID uuid.UUID) (*models.AutomationConfig, error)

	// ListDue returns enabled configs whose next run is at or before now.
	// The scheduler calls this on an org-unscoped connection.
	ListDue(ctx context.Context, now time.Time) ([]*models.AutomationConfig, error)

	// ScheduleNextRun records run bookkeeping: last run time and the next
	// due time. Called unconditionally after each dispatch, success or not.
	ScheduleNextRun(ctx context.Context, configID uuid.UUID, lastRunAt, nextRunAt time.Time) error

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, configID uuid.UUID, enabled bool) error

	// SetEnabledTx flips the enabled flag inside an existing transaction,
	// used to disable atomically with run finalization.
	SetEnabledTx(ctx context.Context, tx pgx.Tx, configID uuid.UUID, enabled bool) error

	// ProposeSuggestedQuery stores a healer suggestion only when none is
	// pending. Compare-and-set: returns apperrors.ErrSuggestionPending when
	// another run got there first.
	ProposeSuggestedQuery(ctx context.Context, configID uuid.UUID, suggestion string) error

	// AcceptSuggestedQuery promotes the pending suggestion into the active
	// query in one statement. This is the explicit human acceptance action;
	// nothing else may overwrite the active query.
	AcceptSuggestedQuery(ctx context.Context, configID uuid.UUID) error

	// ClearSuggestedQuery discards the pending suggestion.
	ClearSuggestedQuery(ctx context.Context, configID uuid.UUID) error
}

type automationConfigRepository struct{}

// NewAutomationConfigRepository creates a new AutomationConfigRepository.
func NewAutomationConfigRepository() AutomationConfigRepository {
	return &automationConfigRepository{}
}

var _ AutomationConfigRepository = (*automationConfigRepository)(nil)

const automationConfigColumns = `
	id, org_id, user_id, enabled, interval_minutes, disable_on_target,
	target_proposal_count, search_query, criteria, suggested_query,
	location, posted_within_days, target_contact_id, document_terms,
	next_run_at, last_run_at, created_at, updated_at`

func (r *automationConfigRepository) GetByID(ctx context.Context, configID uuid.UUID) (*models.AutomationConfig, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT` + automationConfigColumns + `
		FROM sourcing_automation_configs
		WHERE id = $1`

	row := scope.Conn.QueryRow(ctx, query, configID)
	return scanAutomationConfig(row)
}

func (r *automationConfigRepository) ListDue(ctx context.Context, now time.Time) ([]*models.AutomationConfig, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT` + automationConfigColumns + `
		FROM sourcing_automation_configs
		WHERE enabled AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at NULLS FIRST`

	rows, err := scope.Conn.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.AutomationConfig
	for rows.Next() {
		config, err := scanAutomationConfigFromRows(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due configs: %w", err)
	}

	return configs, nil
}

func (r *automationConfigRepository) ScheduleNextRun(ctx context.Context, configID uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE sourcing_automation_configs
		SET last_run_at = $2, next_run_at = $3, updated_at = now()
		WHERE id = $1`

	result, err := scope.Conn.Exec(ctx, query, configID, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to schedule next run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *automationConfigRepository) SetEnabled(ctx context.Context, configID uuid.UUID, enabled bool) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE sourcing_automation_configs
		SET enabled = $2, updated_at = now()
		WHERE id = $1`, configID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *automationConfigRepository) SetEnabledTx(ctx context.Context, tx pgx.Tx, configID uuid.UUID, enabled bool) error {
	result, err := tx.Exec(ctx, `
		UPDATE sourcing_automation_configs
		SET enabled = $2, updated_at = now()
		WHERE id = $1`, configID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *automationConfigRepository) ProposeSuggestedQuery(ctx context.Context, configID uuid.UUID, suggestion string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	// The IS NULL guard makes check-and-write a single compare-and-set so
	// two concurrent runs cannot both store a suggestion.
	result, err := scope.Conn.Exec(ctx, `
		UPDATE sourcing_automation_configs
		SET suggested_query = $2, updated_at = now()
		WHERE id = $1 AND suggested_query IS NULL`, configID, suggestion)
	if err != nil {
		return fmt.Errorf("failed to propose suggested query: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrSuggestionPending
	}

	return nil
}

func (r *automationConfigRepository) AcceptSuggestedQuery(ctx context.Context, configID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE sourcing_automation_configs
		SET search_query = suggested_query, suggested_query = NULL, updated_at = now()
		WHERE id = $1 AND suggested_query IS NOT NULL`, configID)
	if err != nil {
		return fmt.Errorf("failed to accept suggested query: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *automationConfigRepository) ClearSuggestedQuery(ctx context.Context, configID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE sourcing_automation_configs
		SET suggested_query = NULL, updated_at = now()
		WHERE id = $1`, configID)
	if err != nil {
		return fmt.Errorf("failed to clear suggested query: %w", err)
	}

	return nil
}

// Helper functions

func scanAutomationConfig(row pgx.Row) (*models.AutomationConfig, error) {
	config, err := scanConfigFields(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan automation config: %w", err)
	}
	return config, nil
}

func scanAutomationConfigFromRows(rows pgx.Rows) (*models.AutomationConfig, error) {
	config, err := scanConfigFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan automation config: %w", err)
	}
	return config, nil
}

func scanConfigFields(row pgx.Row) (*models.AutomationConfig, error) {
	var c models.AutomationConfig

	err := row.Scan(
		&c.ID,
		&c.OrgID,
		&c.UserID,
		&c.Enabled,
		&c.IntervalMinutes,
		&c.DisableOnTarget,
		&c.TargetProposalCount,
		&c.SearchQuery,
		&c.Criteria,
		&c.SuggestedQuery,
		&c.Location,
		&c.PostedWithinDays,
		&c.TargetContactID,
		&c.DocumentTerms,
		&c.NextRunAt,
		&c.LastRunAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &c, nil
}
