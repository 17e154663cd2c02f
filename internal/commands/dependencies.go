package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-import/internal/domain/categorization"
	"github.com/FACorreiaa/statement-import/internal/domain/import/dedupe"
	importhandler "github.com/FACorreiaa/statement-import/internal/domain/import/handler"
	"github.com/FACorreiaa/statement-import/internal/domain/import/inbox"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/pkg/config"
	"github.com/FACorreiaa/statement-import/pkg/db"
	"github.com/FACorreiaa/statement-import/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Repositories
	ImportRepo         importrepo.ImportRepository
	CategorizationRepo *categorization.Repository

	// Services
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService
	Sessions              *importservice.SessionStore
	Sweeper               *inbox.Sweeper // nil when the inbox is disabled

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := openDatabase(d.Config, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func openDatabase(cfg *config.Config, logger *slog.Logger) (*db.DB, error) {
	return db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		Migrations:      importrepo.Migrations,
		MigrationsDir:   importrepo.MigrationsDir,
	}, logger)
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.Metrics = metrics.New()
	d.CategorizationService = categorization.NewService(d.CategorizationRepo, d.Logger)

	d.ImportService = newImportService(d.Config, d.ImportRepo, d.ImportRepo, d.Logger).
		WithMappingStore(d.ImportRepo).
		WithCategorizer(d.CategorizationService).
		WithJobRecorder(d.ImportRepo).
		WithMetrics(d.Metrics)
	d.Sessions = importservice.NewSessionStore(d.Config.Server.SessionTTL, d.Metrics)

	if d.Config.Inbox.Enabled {
		accountID, err := uuid.Parse(d.Config.Inbox.AccountID)
		if err != nil {
			return fmt.Errorf("invalid INBOX_ACCOUNT_ID: %w", err)
		}
		d.Sweeper = inbox.NewSweeper(d.ImportService, inbox.Config{
			Dir:       d.Config.Inbox.Dir,
			AccountID: accountID,
			Preset:    d.Config.Inbox.Preset,
			Currency:  d.Config.Import.DefaultCurrency,
		}, d.Metrics, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Sessions, d.Config.Server.MaxUploadBytes, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup releases resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
}

// newImportService builds the orchestrator from the import settings.
func newImportService(cfg *config.Config, existing importservice.ExistingSource, sink importservice.TransactionSink, logger *slog.Logger) *importservice.ImportService {
	return importservice.NewImportService(existing, sink, importservice.Options{
		Policy: dedupe.Policy{
			DateToleranceDays: cfg.Import.DateToleranceDays,
			Threshold:         cfg.Import.DuplicateThreshold,
		},
		Workers:         cfg.Import.Workers,
		DefaultCurrency: cfg.Import.DefaultCurrency,
	}, logger)
}
