package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/calculator"
	calculatorhandler "github.com/FACorreiaa/cbhpm-tables/internal/domain/calculator/handler"
	cataloghandler "github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/handler"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	catalogservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/service"
	importhandler "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/handler"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/import/normalizer"
	importservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/snapshot"

	"github.com/FACorreiaa/cbhpm-tables/pkg/config"
	"github.com/FACorreiaa/cbhpm-tables/pkg/cron"
	"github.com/FACorreiaa/cbhpm-tables/pkg/db"
	"github.com/FACorreiaa/cbhpm-tables/pkg/metrics"
	"github.com/FACorreiaa/cbhpm-tables/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Registry *prometheus.Registry

	// Repositories
	CatalogRepo repository.CatalogRepository

	// Services
	ImportMetrics  *metrics.ImportMetrics
	ImportService  *importservice.ImportService
	CatalogService *catalogservice.Service
	Calculator     *calculator.Calculator
	Publisher      *snapshot.Publisher
	FileStorage    storage.Storage
	Scheduler      *cron.Scheduler

	// Handlers
	ImportHandler     *importhandler.ImportHandler
	CatalogHandler    *cataloghandler.CatalogHandler
	CalculatorHandler *calculatorhandler.CalculatorHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase opens the pool and runs migrations. The memory driver needs
// neither.
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if d.Config.Database.Driver == config.DriverMemory {
		d.Logger.Warn("using in-memory catalog, data is lost on restart")
		return nil
	}

	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        int32(d.Config.Database.MinConns),
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if d.Config.Database.MigrateOnStart {
		if err := d.DB.RunMigrations(ctx); err != nil {
			d.DB.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	if d.DB == nil {
		d.CatalogRepo = repository.NewMemoryCatalogRepository()
	} else {
		d.CatalogRepo = repository.NewPostgresCatalogRepository(d.DB.Pool).
			WithBatchSize(d.Config.Import.BatchSize)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	d.Registry = prometheus.NewRegistry()
	if d.Config.Observability.MetricsEnabled {
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.ImportMetrics = metrics.NewImportMetrics(d.Registry)
	}

	// File storage for snapshots and archived uploads
	fileStorage, err := storage.New(&storage.Config{
		Type:      storage.StorageTypeLocal,
		LocalPath: d.Config.Storage.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.CatalogService = catalogservice.NewService(d.CatalogRepo, d.Logger)

	d.Publisher = snapshot.NewPublisher(d.CatalogService, d.FileStorage, d.Logger).
		WithRetry(uint64(d.Config.Snapshot.MaxRetries), snapshot.DefaultBaseBackoff)

	mode, err := normalizer.ParseNumberMode(d.Config.Import.NumberMode)
	if err != nil {
		return err
	}

	// Catalog caches are dropped before the new snapshot is read
	d.ImportService = importservice.NewImportService(d.CatalogRepo, d.Logger).
		WithNumberMode(mode).
		WithMetrics(d.ImportMetrics).
		WithNotifier(d.CatalogService).
		WithNotifier(d.Publisher)

	d.Calculator = calculator.NewCalculator(d.CatalogService, d.Logger).
		WithUCOValue(d.Config.Pricing.UCOValue).
		WithFilmValue(d.Config.Pricing.FilmValue)

	if d.Config.Snapshot.Enabled {
		d.Scheduler = cron.NewScheduler(d.Publisher, d.Config.Snapshot.Spec, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.CatalogRepo, d.Logger).
		WithMaxUploadBytes(d.Config.Import.MaxUploadBytes)
	d.CatalogHandler = cataloghandler.NewCatalogHandler(d.CatalogService, d.Logger)
	d.CalculatorHandler = calculatorhandler.NewCalculatorHandler(d.Calculator, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.CatalogService != nil {
		d.CatalogService.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
