package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/apperrors"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
)

// Runner executes a single config's sourcing run. Satisfied by *RunExecutor.
type Runner interface {
	Execute(ctx context.Context, config *models.AutomationConfig) error
}

// tenantScoper pins a context to an org's database scope. Satisfied by
// *database.TenantScopeProvider.
type tenantScoper interface {
	WithTenantScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error)
}

// SchedulerOptions controls the dispatch loop.
type SchedulerOptions struct {
	Tick              time.Duration
	MaxConcurrentRuns int
}

// Scheduler polls for due automation configs across all orgs and dispatches
// each to the run executor under its own tenant scope. At most one run per
// config is in flight at a time, and total fan-out is bounded.
type Scheduler struct {
	db         *database.DB
	provider   tenantScoper
	configRepo repositories.AutomationConfigRepository
	executor   Runner
	locks      *RunLockRegistry
	opts       SchedulerOptions
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	db *database.DB,
	configRepo repositories.AutomationConfigRepository,
	executor Runner,
	opts SchedulerOptions,
	logger *zap.Logger,
) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 4
	}

	return &Scheduler{
		db:         db,
		provider:   database.NewTenantScopeProvider(db),
		configRepo: configRepo,
		executor:   executor,
		locks:      NewRunLockRegistry(),
		opts:       opts,
		logger:     logger.Named("scheduler"),
	}
}

// Start launches the dispatch loop. It returns immediately; Stop shuts the
// loop down and waits for in-flight runs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("scheduler started",
		zap.Duration("tick", s.opts.Tick),
		zap.Int("max_concurrent_runs", s.opts.MaxConcurrentRuns))
}

// Stop cancels the loop and blocks until in-flight runs complete.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	// Bound total fan-out across all orgs.
	slots := make(chan struct{}, s.opts.MaxConcurrentRuns)

	// One pass at startup so a restart does not wait out a full tick.
	s.dispatchDue(ctx, slots)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx, slots)
		}
	}
}

// dispatchDue lists due configs across all orgs and dispatches them.
func (s *Scheduler) dispatchDue(ctx context.Context, slots chan struct{}) {
	due, err := s.listDue(ctx)
	if err != nil {
		s.logger.Error("failed to list due configs", zap.Error(err))
		return
	}

	s.dispatch(ctx, due, slots)
}

// dispatch launches a run per config that is not already in flight.
func (s *Scheduler) dispatch(ctx context.Context, due []*models.AutomationConfig, slots chan struct{}) {
	for _, config := range due {
		if !s.locks.TryAcquire(config.ID) {
			// Previous run still in flight; it will come due again.
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			s.locks.Release(config.ID)
			return
		}

		s.wg.Add(1)
		go func(config *models.AutomationConfig) {
			defer s.wg.Done()
			defer func() { <-slots }()
			defer s.locks.Release(config.ID)

			s.runOne(ctx, config)
		}(config)
	}
}

// listDue queries due configs on an org-unscoped connection. The engine
// connects as the table owner, so RLS does not hide other orgs' rows here.
func (s *Scheduler) listDue(ctx context.Context) ([]*models.AutomationConfig, error) {
	scope, err := s.db.WithoutTenant(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	return s.configRepo.ListDue(database.SetTenantScope(ctx, scope), time.Now().UTC())
}

// runOne executes a single config's run under its org's tenant scope.
// Run bookkeeping is advanced unconditionally: a failed run waits out the
// same interval as a successful one rather than retrying hot.
func (s *Scheduler) runOne(ctx context.Context, config *models.AutomationConfig) {
	tenantCtx, cleanup, err := s.provider.WithTenantScope(ctx, config.OrgID)
	if err != nil {
		s.logger.Error("failed to acquire tenant scope",
			zap.String("config_id", config.ID.String()),
			zap.String("org_id", config.OrgID.String()),
			zap.Error(err))
		return
	}
	defer cleanup()

	now := time.Now().UTC()
	if err := s.configRepo.ScheduleNextRun(tenantCtx, config.ID, now, now.Add(config.Interval())); err != nil {
		s.logger.Error("failed to schedule next run",
			zap.String("config_id", config.ID.String()),
			zap.Error(err))
		return
	}

	if err := s.executor.Execute(tenantCtx, config); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrConfigDisabled):
			s.logger.Debug("config disabled between listing and execution",
				zap.String("config_id", config.ID.String()))
		case errors.Is(err, apperrors.ErrTargetEntityMissing):
			s.logger.Warn("target contact missing, run skipped",
				zap.String("config_id", config.ID.String()))
		default:
			s.logger.Error("run failed",
				zap.String("config_id", config.ID.String()),
				zap.Error(err))
		}
	}
}
