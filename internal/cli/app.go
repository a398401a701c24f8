package cli

import (
	"context"
	"errors"
	"fmt"

	"billingsync/internal/amqp"
	"billingsync/internal/backend"
	"billingsync/internal/classify"
	"billingsync/internal/config"
	"billingsync/internal/log"
	"billingsync/internal/pipeline"
	"billingsync/internal/storage"
)

// App holds the wired pipeline for one process.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Repo    *storage.SQLiteRepository
	Backend *backend.Result
	// Broker is nil when AMQP_URL is empty.
	Broker *amqp.Client
	Lookup *classify.CachedLookup

	Importer  *pipeline.Importer
	Processor *pipeline.Processor
	Inspector *pipeline.Inspector
}

// NewApp opens the state store, the data backend and the broker and builds
// both pipeline stages on top of them.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("time zone: %w", err)
	}
	tieBreak, err := classify.ParseTieBreak(cfg.TieBreak)
	if err != nil {
		return nil, err
	}

	app.Repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", cfg.SQLiteDBPath, err)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Backend, err = backend.NewFactory(logger.Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var events pipeline.EventPublisher = pipeline.NopPublisher{}
	if cfg.AMQPURL != "" {
		app.Broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
		events = app.Broker
	} else {
		logger.Info("AMQP not configured; period events disabled")
	}

	app.Lookup = classify.NewCachedLookup(
		classify.NewSheetLookup(app.Backend.Workbook, cfg.LookupSheetName, cfg.LookupCacheTTL),
		cfg.LookupCacheSize, cfg.LookupCacheTTL)
	classifier := classify.New(app.Lookup,
		classify.WithTieBreak(tieBreak),
		classify.WithLogger(logger.WithComponent(log.ComponentClassify).Slog()))

	deps := pipeline.Deps{
		Workbook:   app.Backend.Workbook,
		Converter:  app.Backend.Converter,
		Classifier: classifier,
		Sessions:   app.Repo,
		States:     app.Repo,
		Locks:      app.Repo,
		Events:     events,
	}
	opts := pipeline.DefaultOptions()
	opts.TrackingSheet = cfg.TrackingSheetName
	opts.ReferenceSheet = cfg.ReferenceSheetName
	opts.ClassificationHeader = cfg.ClassificationHeader
	opts.Location = loc
	opts.SessionTTL = cfg.SessionTTL
	opts.LockTTL = cfg.LockTTL

	opts.Handler = logger.WithComponent(log.ComponentImport).Slog().Handler()
	app.Importer = pipeline.NewImporter(deps, opts)
	opts.Handler = logger.WithComponent(log.ComponentProcess).Slog().Handler()
	app.Processor = pipeline.NewProcessor(deps, opts)
	app.Inspector = pipeline.NewInspector(deps, opts)

	logger.Info("Application initialized",
		"backend", cfg.DataBackend,
		"converter", cfg.Converter,
		"tie_break", cfg.TieBreak,
		"events", app.Broker != nil)
	return app, nil
}

// Close releases the broker, backend and state store.
func (a *App) Close() error {
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		errs = append(errs, a.Backend.Cleanup())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}
