package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tokenops/capguard/config"
	"github.com/tokenops/capguard/ledger"
	"github.com/tokenops/capguard/middleware"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/repositories/postgres"
	"github.com/tokenops/capguard/services/audit"
	"github.com/tokenops/capguard/services/governance"
	"github.com/tokenops/capguard/services/guard"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Policies    repositories.PolicyStore
	AuditEvents repositories.AuditRepository
	TxManager   repositories.TransactionManager

	// Ledger access
	Ledger ledger.Reader
	Clock  ledger.Clock

	// Services
	AuditService      *audit.Service
	GuardService      *guard.Service
	GovernanceService *governance.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initLedger(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	repos := d.RepoFactory.NewRepositories()

	d.Policies = repos.Policies
	d.AuditEvents = repos.AuditEvents
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initLedger selects the ledger backend and clock
func (d *Dependencies) initLedger(cfg *config.Config) error {
	switch cfg.Guard.LedgerMode {
	case "memory":
		d.Ledger = ledger.NewMemory()
		d.Logger.Warn("using in-memory ledger; token account state will not survive restarts")
	default:
		return fmt.Errorf("unknown ledger mode: %s", cfg.Guard.LedgerMode)
	}

	d.Clock = ledger.SystemClock{}
	return nil
}

// initServices wires the guard, governance and audit services
func (d *Dependencies) initServices(cfg *config.Config) error {
	ledgerProgram, err := models.ParseIdentity(cfg.Guard.LedgerProgramID)
	if err != nil {
		return fmt.Errorf("invalid ledger program ID: %w", err)
	}

	d.AuditService = audit.NewService(d.AuditEvents, d.Clock, d.Logger, audit.Config{
		BufferSize:  cfg.Guard.AuditBufferSize,
		WorkerCount: cfg.Guard.AuditWorkerCount,
	})

	d.GuardService = guard.NewService(d.Policies, d.Ledger, d.AuditService, ledgerProgram, d.Logger)
	d.GovernanceService = governance.NewService(d.Policies, d.AuditEvents, d.TxManager, d.Clock, d.Logger)

	d.Logger.Info("services initialized",
		zap.String("ledger_program", ledgerProgram.String()))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AuditService != nil {
		if err := d.AuditService.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
