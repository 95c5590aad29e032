package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaycrm/sourcing-engine/pkg/llm"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

// Function-field mocks for the repository interfaces. Unset fields return
// zero values so each test only scripts what it cares about.

type mockConfigRepo struct {
	GetByIDFunc               func(ctx context.Context, configID uuid.UUID) (*models.AutomationConfig, error)
	ListDueFunc               func(ctx context.Context, now time.Time) ([]*models.AutomationConfig, error)
	ScheduleNextRunFunc       func(ctx context.Context, configID uuid.UUID, lastRunAt, nextRunAt time.Time) error
	SetEnabledFunc            func(ctx context.Context, configID uuid.UUID, enabled bool) error
	SetEnabledTxFunc          func(ctx context.Context, tx pgx.Tx, configID uuid.UUID, enabled bool) error
	ProposeSuggestedQueryFunc func(ctx context.Context, configID uuid.UUID, suggestion string) error
	AcceptSuggestedQueryFunc  func(ctx context.Context, configID uuid.UUID) error
	ClearSuggestedQueryFunc   func(ctx context.Context, configID uuid.UUID) error
}

func (m *mockConfigRepo) GetByID(ctx context.Context, configID uuid.UUID) (*models.AutomationConfig, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, configID)
	}
	return nil, nil
}

func (m *mockConfigRepo) ListDue(ctx context.Context, now time.Time) ([]*models.AutomationConfig, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, now)
	}
	return nil, nil
}

func (m *mockConfigRepo) ScheduleNextRun(ctx context.Context, configID uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	if m.ScheduleNextRunFunc != nil {
		return m.ScheduleNextRunFunc(ctx, configID, lastRunAt, nextRunAt)
	}
	return nil
}

func (m *mockConfigRepo) SetEnabled(ctx context.Context, configID uuid.UUID, enabled bool) error {
	if m.SetEnabledFunc != nil {
		return m.SetEnabledFunc(ctx, configID, enabled)
	}
	return nil
}

func (m *mockConfigRepo) SetEnabledTx(ctx context.Context, tx pgx.Tx, configID uuid.UUID, enabled bool) error {
	if m.SetEnabledTxFunc != nil {
		return m.SetEnabledTxFunc(ctx, tx, configID, enabled)
	}
	return nil
}

func (m *mockConfigRepo) ProposeSuggestedQuery(ctx context.Context, configID uuid.UUID, suggestion string) error {
	if m.ProposeSuggestedQueryFunc != nil {
		return m.ProposeSuggestedQueryFunc(ctx, configID, suggestion)
	}
	return nil
}

func (m *mockConfigRepo) AcceptSuggestedQuery(ctx context.Context, configID uuid.UUID) error {
	if m.AcceptSuggestedQueryFunc != nil {
		return m.AcceptSuggestedQueryFunc(ctx, configID)
	}
	return nil
}

func (m *mockConfigRepo) ClearSuggestedQuery(ctx context.Context, configID uuid.UUID) error {
	if m.ClearSuggestedQueryFunc != nil {
		return m.ClearSuggestedQueryFunc(ctx, configID)
	}
	return nil
}

var _ repositories.AutomationConfigRepository = (*mockConfigRepo)(nil)

type mockRunLogRepo struct {
	StartFunc      func(ctx context.Context, orgID, configID uuid.UUID, executedQuery string) (*models.RunLog, error)
	FinalizeFunc   func(ctx context.Context, runID uuid.UUID, outcome repositories.RunOutcome) error
	FinalizeTxFunc func(ctx context.Context, tx pgx.Tx, runID uuid.UUID, outcome repositories.RunOutcome) error
	ListRecentFunc func(ctx context.Context, configID uuid.UUID, limit int) ([]*models.RunLog, error)
}

func (m *mockRunLogRepo) Start(ctx context.Context, orgID, configID uuid.UUID, executedQuery string) (*models.RunLog, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, orgID, configID, executedQuery)
	}
	return &models.RunLog{
		ID:            uuid.New(),
		OrgID:         orgID,
		ConfigID:      configID,
		Status:        models.RunStatusRunning,
		ExecutedQuery: executedQuery,
		StartedAt:     time.Now(),
	}, nil
}

func (m *mockRunLogRepo) Finalize(ctx context.Context, runID uuid.UUID, outcome repositories.RunOutcome) error {
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, runID, outcome)
	}
	return nil
}

func (m *mockRunLogRepo) FinalizeTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, outcome repositories.RunOutcome) error {
	if m.FinalizeTxFunc != nil {
		return m.FinalizeTxFunc(ctx, tx, runID, outcome)
	}
	return nil
}

func (m *mockRunLogRepo) ListRecent(ctx context.Context, configID uuid.UUID, limit int) ([]*models.RunLog, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, configID, limit)
	}
	return nil, nil
}

var _ repositories.RunLogRepository = (*mockRunLogRepo)(nil)

type mockProposalRepo struct {
	CreateFunc             func(ctx context.Context, proposal *models.Proposal) (*models.Proposal, error)
	GetByIDFunc            func(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error)
	ListDedupKeysFunc      func(ctx context.Context, statuses ...string) (map[string]struct{}, error)
	CountByStatusFunc      func(ctx context.Context, configID uuid.UUID, statuses ...string) (int, error)
	ListTitlesByStatusFunc func(ctx context.Context, status string, limit int) ([]string, error)
	UpdateStatusFunc       func(ctx context.Context, proposalID uuid.UUID, status, reviewedBy string) error
}

func (m *mockProposalRepo) Create(ctx context.Context, proposal *models.Proposal) (*models.Proposal, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, proposal)
	}
	return proposal, nil
}

func (m *mockProposalRepo) GetByID(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, proposalID)
	}
	return nil, nil
}

func (m *mockProposalRepo) ListDedupKeys(ctx context.Context, statuses ...string) (map[string]struct{}, error) {
	if m.ListDedupKeysFunc != nil {
		return m.ListDedupKeysFunc(ctx, statuses...)
	}
	return map[string]struct{}{}, nil
}

func (m *mockProposalRepo) CountByStatus(ctx context.Context, configID uuid.UUID, statuses ...string) (int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, configID, statuses...)
	}
	return 0, nil
}

func (m *mockProposalRepo) ListTitlesByStatus(ctx context.Context, status string, limit int) ([]string, error) {
	if m.ListTitlesByStatusFunc != nil {
		return m.ListTitlesByStatusFunc(ctx, status, limit)
	}
	return nil, nil
}

func (m *mockProposalRepo) UpdateStatus(ctx context.Context, proposalID uuid.UUID, status, reviewedBy string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, proposalID, status, reviewedBy)
	}
	return nil
}

var _ repositories.ProposalRepository = (*mockProposalRepo)(nil)

type mockLeadRepo struct {
	ListSourceURLsFunc func(ctx context.Context) ([]string, error)
	ContactExistsFunc  func(ctx context.Context, contactID uuid.UUID) (bool, error)
}

func (m *mockLeadRepo) ListSourceURLs(ctx context.Context) ([]string, error) {
	if m.ListSourceURLsFunc != nil {
		return m.ListSourceURLsFunc(ctx)
	}
	return nil, nil
}

func (m *mockLeadRepo) ContactExists(ctx context.Context, contactID uuid.UUID) (bool, error) {
	if m.ContactExistsFunc != nil {
		return m.ContactExistsFunc(ctx, contactID)
	}
	return true, nil
}

var _ repositories.LeadRepository = (*mockLeadRepo)(nil)

// mockCompleter scripts the model call behind the gate and the healer.
type mockCompleter struct {
	CompleteFunc func(ctx context.Context, req llm.ChatRequest) (string, error)
	Calls        []llm.ChatRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.ChatRequest) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

var _ Completer = (*mockCompleter)(nil)
