package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// ProposalRepository provides data access for sourcing proposals.
type ProposalRepository interface {
	// Create inserts a proposal. A dedup-key collision returns
	// apperrors.ErrConflict; callers treat that as already-proposed.
	Create(ctx context.Context, proposal *models.Proposal) (*models.Proposal, error)

	// GetByID returns a single proposal.
	GetByID(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error)

	// ListDedupKeys returns the dedup keys of all proposals in the given
	// statuses. The deduplicator uses this as an exclusion set.
	ListDedupKeys(ctx context.Context, statuses ...string) (map[string]struct{}, error)

	// CountByStatus counts a config's proposals in the given statuses.
	CountByStatus(ctx context.Context, configID uuid.UUID, statuses ...string) (int, error)

	// ListTitlesByStatus returns payload titles for proposals in a status,
	// newest first, capped at limit. Feeds keyword analytics.
	ListTitlesByStatus(ctx context.Context, status string, limit int) ([]string, error)

	// UpdateStatus moves a pending proposal to approved or rejected and
	// records the reviewer. Non-pending rows are left alone.
	UpdateStatus(ctx context.Context, proposalID uuid.UUID, status, reviewedBy string) error
}

type proposalRepository struct{}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository() ProposalRepository {
	return &proposalRepository{}
}

var _ ProposalRepository = (*proposalRepository)(nil)

const proposalColumns = `
	id, org_id, config_id, entity_type, operation, payload, status,
	dedup_key, reviewed_by, reviewed_at, created_at`

func (r *proposalRepository) Create(ctx context.Context, proposal *models.Proposal) (*models.Proposal, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO sourcing_proposals (org_id, config_id, entity_type, operation, payload, status, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING` + proposalColumns

	row := scope.Conn.QueryRow(ctx, query,
		proposal.OrgID,
		proposal.ConfigID,
		proposal.EntityType,
		proposal.Operation,
		proposal.Payload,
		models.ProposalStatusPending,
		proposal.DedupKey,
	)

	created, err := scanProposal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}

	return created, nil
}

func (r *proposalRepository) GetByID(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT` + proposalColumns + `
		FROM sourcing_proposals
		WHERE id = $1`

	proposal, err := scanProposal(scope.Conn.QueryRow(ctx, query, proposalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	return proposal, nil
}

func (r *proposalRepository) ListDedupKeys(ctx context.Context, statuses ...string) (map[string]struct{}, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT dedup_key
		FROM sourcing_proposals
		WHERE status = ANY($1)`

	rows, err := scope.Conn.Query(ctx, query, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list dedup keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan dedup key: %w", err)
		}
		keys[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dedup keys: %w", err)
	}

	return keys, nil
}

func (r *proposalRepository) CountByStatus(ctx context.Context, configID uuid.UUID, statuses ...string) (int, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT COUNT(*)
		FROM sourcing_proposals
		WHERE config_id = $1 AND status = ANY($2)`

	var count int
	if err := scope.Conn.QueryRow(ctx, query, configID, statuses).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}

	return count, nil
}

func (r *proposalRepository) ListTitlesByStatus(ctx context.Context, status string, limit int) ([]string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT COALESCE(payload->>'title', '')
		FROM sourcing_proposals
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposal titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan proposal title: %w", err)
		}
		if title != "" {
			titles = append(titles, title)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposal titles: %w", err)
	}

	return titles, nil
}

func (r *proposalRepository) UpdateStatus(ctx context.Context, proposalID uuid.UUID, status, reviewedBy string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE sourcing_proposals
		SET status = $2, reviewed_by = $3, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'`

	result, err := scope.Conn.Exec(ctx, query, proposalID, status, reviewedBy)
	if err != nil {
		return fmt.Errorf("failed to update proposal status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Helper functions

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal

	err := row.Scan(
		&p.ID,
		&p.OrgID,
		&p.ConfigID,
		&p.EntityType,
		&p.Operation,
		&p.Payload,
		&p.Status,
		&p.DedupKey,
		&p.ReviewedBy,
		&p.ReviewedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}
