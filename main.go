package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/relaycrm/sourcing-engine/pkg/config"
	"github.com/relaycrm/sourcing-engine/pkg/database"
	"github.com/relaycrm/sourcing-engine/pkg/handlers"
	"github.com/relaycrm/sourcing-engine/pkg/llm"
	"github.com/relaycrm/sourcing-engine/pkg/logging"
	"github.com/relaycrm/sourcing-engine/pkg/models"
	"github.com/relaycrm/sourcing-engine/pkg/repositories"
	"github.com/relaycrm/sourcing-engine/pkg/search"
	"github.com/relaycrm/sourcing-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Int("model_tiers", len(cfg.Models.Tiers)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime(),
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime(),
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	promoter, err := buildPromoter(cfg, logger)
	if err != nil {
		logger.Fatal("model setup failed", zap.Error(err))
	}

	searcher, err := search.NewClient(&search.Config{
		BaseURL:    cfg.Search.BaseURL,
		APIKey:     cfg.Search.APIKey,
		Timeout:    cfg.Search.Timeout(),
		MaxRetries: cfg.Search.MaxRetries,
	}, logger)
	if err != nil {
		logger.Fatal("search client setup failed", zap.Error(err))
	}

	configRepo := repositories.NewAutomationConfigRepository()
	runLogRepo := repositories.NewRunLogRepository()
	proposalRepo := repositories.NewProposalRepository()
	leadRepo := repositories.NewLeadRepository()

	validator := services.NewLinkValidator(cfg.LinkCheck.MaxConcurrent, cfg.LinkCheck.Timeout(), logger)
	dedup := services.NewDeduplicator(proposalRepo, leadRepo, logger)
	gate := services.NewEvaluationGate(promoter, proposalRepo, logger)
	analytics := services.NewAnalyticsService(runLogRepo, proposalRepo, services.AnalyticsOptions{
		WindowSize:              cfg.Analytics.WindowSize,
		ExhaustionDuplicateRate: cfg.Analytics.ExhaustionDuplicateRate,
		ExhaustionRunCount:      cfg.Analytics.ExhaustionRunCount,
	}, logger)
	healer := services.NewQueryHealer(promoter, configRepo, analytics, logger)

	executor := services.NewRunExecutor(
		configRepo, runLogRepo, proposalRepo, leadRepo,
		searcher, validator, dedup, gate, healer, logger)

	scheduler := services.NewScheduler(db, configRepo, executor, services.SchedulerOptions{
		Tick:              cfg.Scheduler.Tick(),
		MaxConcurrentRuns: cfg.Scheduler.MaxConcurrentRuns,
	}, logger)

	scheduler.Start(ctx)

	mux := http.NewServeMux()
	healthHandler := handlers.NewHealthHandler(cfg, db, logger)
	healthHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting sourcing-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
}

// runMigrations applies pending schema migrations over a short-lived
// database/sql connection, which golang-migrate requires.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer migrationDB.Close()

	return database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger)
}

// buildPromoter registers a client for every provider the tier chain
// references and wraps them in the promotion chain.
func buildPromoter(cfg *config.Config, logger *zap.Logger) (*llm.Promoter, error) {
	registry := llm.NewProviderRegistry()
	registered := make(map[string]bool)

	for _, tier := range cfg.Models.Tiers {
		if registered[tier.Provider] {
			continue
		}
		registered[tier.Provider] = true

		switch tier.Provider {
		case models.ProviderOpenAI:
			client, err := llm.NewOpenAIClient(&llm.OpenAIConfig{
				BaseURL: cfg.Models.OpenAIBaseURL,
				APIKey:  cfg.Models.OpenAIAPIKey,
			}, logger)
			if err != nil {
				return nil, err
			}
			registry.Register(models.ProviderOpenAI, client)

		case models.ProviderAnthropic:
			client, err := llm.NewAnthropicClient(cfg.Models.AnthropicAPIKey, logger)
			if err != nil {
				return nil, err
			}
			registry.Register(models.ProviderAnthropic, client)
		}
	}

	return llm.NewPromoter(registry, cfg.Models.Tiers, logger)
}
