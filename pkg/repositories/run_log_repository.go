package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// RunLogRepository provides data access for sourcing run logs.
// Run logs are append-only: a row is created in running state and
// finalized exactly once.
type RunLogRepository interface {
	// Start creates a run log in running state and returns it.
	Start(ctx context.Context, orgID, configID uuid.UUID, executedQuery string) (*models.RunLog, error)

	// Finalize transitions a running run to completed or failed. The
	// status guard rejects a second finalization with ErrNotFound.
	Finalize(ctx context.Context, runID uuid.UUID, outcome RunOutcome) error

	// FinalizeTx is Finalize inside an existing transaction, used when a
	// config must be disabled atomically with the final run result.
	FinalizeTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, outcome RunOutcome) error

	// ListRecent returns the newest runs for a config, most recent first.
	ListRecent(ctx context.Context, configID uuid.UUID, limit int) ([]*models.RunLog, error)
}

// RunOutcome carries the terminal state of a run.
type RunOutcome struct {
	Status           string
	ProspectsFound   int
	DuplicateCount   int
	ProposalsCreated int
	RelatedSearches  []string
	ErrorDetail      string
}

type runLogRepository struct{}

// NewRunLogRepository creates a new RunLogRepository.
func NewRunLogRepository() RunLogRepository {
	return &runLogRepository{}
}

var _ RunLogRepository = (*runLogRepository)(nil)

const runLogColumns = `
	id, org_id, config_id, status, executed_query, prospects_found,
	duplicate_count, proposals_created, related_searches, error_detail,
	started_at, ended_at`

func (r *runLogRepository) Start(ctx context.Context, orgID, configID uuid.UUID, executedQuery string) (*models.RunLog, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO sourcing_run_logs (org_id, config_id, status, executed_query)
		VALUES ($1, $2, $3, $4)
		RETURNING` + runLogColumns

	row := scope.Conn.QueryRow(ctx, query, orgID, configID, models.RunStatusRunning, executedQuery)
	run, err := scanRunLog(row)
	if err != nil {
		return nil, fmt.Errorf("failed to start run log: %w", err)
	}

	return run, nil
}

const finalizeRunQuery = `
	UPDATE sourcing_run_logs
	SET status = $2,
	    prospects_found = $3,
	    duplicate_count = $4,
	    proposals_created = $5,
	    related_searches = $6,
	    error_detail = $7,
	    ended_at = $8
	WHERE id = $1 AND status = 'running'`

func (r *runLogRepository) Finalize(ctx context.Context, runID uuid.UUID, outcome RunOutcome) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	return finalizeRun(ctx, scope.Conn, runID, outcome)
}

func (r *runLogRepository) FinalizeTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, outcome RunOutcome) error {
	return finalizeRun(ctx, tx, runID, outcome)
}

// execer is the Exec subset shared by pooled connections and transactions.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func finalizeRun(ctx context.Context, conn execer, runID uuid.UUID, outcome RunOutcome) error {
	related := outcome.RelatedSearches
	if related == nil {
		related = []string{}
	}

	result, err := conn.Exec(ctx, finalizeRunQuery,
		runID,
		outcome.Status,
		outcome.ProspectsFound,
		outcome.DuplicateCount,
		outcome.ProposalsCreated,
		related,
		outcome.ErrorDetail,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *runLogRepository) ListRecent(ctx context.Context, configID uuid.UUID, limit int) ([]*models.RunLog, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT` + runLogColumns + `
		FROM sourcing_run_logs
		WHERE config_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunLog
	for rows.Next() {
		run, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run logs: %w", err)
	}

	return runs, nil
}

// Helper functions

func scanRunLog(row pgx.Row) (*models.RunLog, error) {
	var run models.RunLog

	err := row.Scan(
		&run.ID,
		&run.OrgID,
		&run.ConfigID,
		&run.Status,
		&run.ExecutedQuery,
		&run.ProspectsFound,
		&run.DuplicateCount,
		&run.ProposalsCreated,
		&run.RelatedSearches,
		&run.ErrorDetail,
		&run.StartedAt,
		&run.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	return &run, nil
}
