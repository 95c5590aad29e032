//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/testhelpers"
)

// tenantCtx returns a context scoped to orgID plus its cleanup.
func tenantCtx(t *testing.T, db *database.DB, orgID uuid.UUID) context.Context {
	t.Helper()

	scope, err := db.WithTenant(context.Background(), orgID)
	require.NoError(t, err)
	t.Cleanup(scope.Close)

	return database.SetTenantScope(context.Background(), scope)
}

func insertConfig(t *testing.T, ctx context.Context, orgID uuid.UUID) uuid.UUID {
	t.Helper()

	scope, ok := database.GetTenantScope(ctx)
	require.True(t, ok)

	var configID uuid.UUID
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO sourcing_automation_configs (org_id, user_id, enabled, interval_minutes, search_query, criteria)
		VALUES ($1, $2, true, 30, 'test query', 'test criteria')
		RETURNING id`, orgID, uuid.New()).Scan(&configID)
	require.NoError(t, err)

	return configID
}

func TestProposalRepository_DedupConflict(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t, "../../migrations")

	orgID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, orgID)
	configID := insertConfig(t, ctx, orgID)

	repo := NewProposalRepository()

	proposal := &models.Proposal{
		OrgID:      orgID,
		ConfigID:   configID,
		EntityType: models.ProposalEntityLead,
		Operation:  models.ProposalOperationCreate,
		Payload:    map[string]any{"title": "Engineer"},
		DedupKey:   "https://example.com/jobs/1",
	}

	created, err := repo.Create(ctx, proposal)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPending, created.Status)
	assert.NotEqual(t, uuid.Nil, created.ID)

	// Same dedup key in the same org must collide.
	_, err = repo.Create(ctx, proposal)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	// Same dedup key in a different org must not.
	otherOrg := uuid.New()
	otherCtx := tenantCtx(t, engineDB.DB, otherOrg)
	otherConfig := insertConfig(t, otherCtx, otherOrg)

	_, err = repo.Create(otherCtx, &models.Proposal{
		OrgID:      otherOrg,
		ConfigID:   otherConfig,
		EntityType: models.ProposalEntityLead,
		Operation:  models.ProposalOperationCreate,
		Payload:    map[string]any{"title": "Engineer"},
		DedupKey:   "https://example.com/jobs/1",
	})
	require.NoError(t, err)
}

func TestProposalRepository_StatusLifecycle(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t, "../../migrations")

	orgID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, orgID)
	configID := insertConfig(t, ctx, orgID)

	repo := NewProposalRepository()

	created, err := repo.Create(ctx, &models.Proposal{
		OrgID:      orgID,
		ConfigID:   configID,
		EntityType: models.ProposalEntityLead,
		Operation:  models.ProposalOperationCreate,
		Payload:    map[string]any{"title": "Engineer"},
		DedupKey:   uuid.NewString(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, created.ID, models.ProposalStatusApproved, "reviewer@example.com"))

	approved, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "reviewer@example.com", *approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)

	// A second review attempt finds no pending row.
	err = repo.UpdateStatus(ctx, created.ID, models.ProposalStatusRejected, "other@example.com")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	count, err := repo.CountByStatus(ctx, configID,
		models.ProposalStatusPending, models.ProposalStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunLogRepository_FinalizeOnce(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t, "../../migrations")

	orgID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, orgID)
	configID := insertConfig(t, ctx, orgID)

	repo := NewRunLogRepository()

	run, err := repo.Start(ctx, orgID, configID, "test query")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.EndedAt)

	outcome := RunOutcome{
		Status:           models.RunStatusCompleted,
		ProspectsFound:   10,
		DuplicateCount:   3,
		ProposalsCreated: 2,
		RelatedSearches:  []string{"other query"},
	}
	require.NoError(t, repo.Finalize(ctx, run.ID, outcome))

	// Finalized rows are immutable: a second finalization finds nothing.
	err = repo.Finalize(ctx, run.ID, RunOutcome{Status: models.RunStatusFailed})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	runs, err := repo.ListRecent(ctx, configID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 10, runs[0].ProspectsFound)
	assert.Equal(t, []string{"other query"}, runs[0].RelatedSearches)
	assert.NotNil(t, runs[0].EndedAt)
}

func TestAutomationConfigRepository_SuggestionLifecycle(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t, "../../migrations")

	orgID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, orgID)
	configID := insertConfig(t, ctx, orgID)

	repo := NewAutomationConfigRepository()

	require.NoError(t, repo.ProposeSuggestedQuery(ctx, configID, "better query"))

	// The CAS guard rejects a second suggestion while one is pending.
	err := repo.ProposeSuggestedQuery(ctx, configID, "competing query")
	require.ErrorIs(t, err, apperrors.ErrSuggestionPending)

	config, err := repo.GetByID(ctx, configID)
	require.NoError(t, err)
	require.NotNil(t, config.SuggestedQuery)
	assert.Equal(t, "better query", *config.SuggestedQuery)
	// The active query is untouched until explicit acceptance.
	assert.Equal(t, "test query", config.SearchQuery)

	require.NoError(t, repo.AcceptSuggestedQuery(ctx, configID))

	config, err = repo.GetByID(ctx, configID)
	require.NoError(t, err)
	assert.Equal(t, "better query", config.SearchQuery)
	assert.Nil(t, config.SuggestedQuery)

	// Nothing pending anymore: acceptance has nothing to promote.
	err = repo.AcceptSuggestedQuery(ctx, configID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	// And a cleared suggestion never reaches the active query.
	require.NoError(t, repo.ProposeSuggestedQuery(ctx, configID, "discarded query"))
	require.NoError(t, repo.ClearSuggestedQuery(ctx, configID))

	config, err = repo.GetByID(ctx, configID)
	require.NoError(t, err)
	assert.Nil(t, config.SuggestedQuery)
	assert.Equal(t, "better query", config.SearchQuery)
}

func TestAutomationConfigRepository_Scheduling(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t, "../../migrations")

	orgID := uuid.New()
	ctx := tenantCtx(t, engineDB.DB, orgID)
	configID := insertConfig(t, ctx, orgID)

	repo := NewAutomationConfigRepository()

	// A fresh enabled config with no next_run_at is due immediately.
	scope, err := engineDB.DB.WithoutTenant(context.Background())
	require.NoError(t, err)
	t.Cleanup(scope.Close)
	crossOrgCtx := database.SetTenantScope(context.Background(), scope)

	due, err := repo.ListDue(crossOrgCtx, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, containsConfig(due, configID))

	now := time.Now().UTC()
	require.NoError(t, repo.ScheduleNextRun(ctx, configID, now, now.Add(30*time.Minute)))

	due, err = repo.ListDue(crossOrgCtx, now)
	require.NoError(t, err)
	assert.False(t, containsConfig(due, configID))

	// At the scheduled time the config comes due again.
	due, err = repo.ListDue(crossOrgCtx, now.Add(31*time.Minute))
	require.NoError(t, err)
	assert.True(t, containsConfig(due, configID))

	// Disabled configs never come due.
	require.NoError(t, repo.SetEnabled(ctx, configID, false))
	due, err = repo.ListDue(crossOrgCtx, now.Add(31*time.Minute))
	require.NoError(t, err)
	assert.False(t, containsConfig(due, configID))
}

func containsConfig(configs []*models.AutomationConfig, id uuid.UUID) bool {
	for _, c := range configs {
		if c.ID == id {
			return true
		}
	}
	return false
}
