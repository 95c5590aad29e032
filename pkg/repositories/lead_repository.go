package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaycrm/sourcing-engine/pkg/database"
)

// LeadRepository gives the sourcing engine read access to existing CRM
// records. The CRM CRUD layer owns writes to these tables.
type LeadRepository interface {
	// ListSourceURLs returns the source URLs of all leads in the org.
	// The deduplicator canonicalizes these into its exclusion set.
	ListSourceURLs(ctx context.Context) ([]string, error)

	// ContactExists reports whether a contact row exists in the org.
	ContactExists(ctx context.Context, contactID uuid.UUID) (bool, error)
}

type leadRepository struct{}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository() LeadRepository {
	return &leadRepository{}
}

var _ LeadRepository = (*leadRepository)(nil)

func (r *leadRepository) ListSourceURLs(ctx context.Context) ([]string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT source_url
		FROM crm_leads
		WHERE source_url IS NOT NULL AND source_url <> ''`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list lead source URLs: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan lead source URL: %w", err)
		}
		urls = append(urls, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lead source URLs: %w", err)
	}

	return urls, nil
}

func (r *leadRepository) ContactExists(ctx context.Context, contactID uuid.UUID) (bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return false, fmt.Errorf("no tenant scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM crm_contacts WHERE id = $1)`, contactID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check contact existence: %w", err)
	}

	return exists, nil
}
