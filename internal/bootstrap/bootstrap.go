package bootstrap

import (
	"context"
	"fmt"

	"github.com/dialerops/report-pipeline/internal/config"
	"github.com/dialerops/report-pipeline/internal/core/domain"
	"github.com/dialerops/report-pipeline/internal/core/ports"
	"github.com/dialerops/report-pipeline/internal/core/usecase"
	"github.com/dialerops/report-pipeline/internal/infrastructure/parser/xlsx"
	"github.com/dialerops/report-pipeline/internal/infrastructure/queue/nats"
	"github.com/dialerops/report-pipeline/internal/infrastructure/repository/postgres"
	"github.com/dialerops/report-pipeline/internal/infrastructure/resilience"
	"github.com/dialerops/report-pipeline/internal/infrastructure/storage/localfs"
)

type App struct {
	Config  config.Config
	Catalog *domain.Catalog

	Bus ports.EventBus

	IngestUC    ports.ReportIngestor
	AggregateUC *usecase.AggregateUseCase
	KPIQueryUC  ports.KPIQueryService
	AlertUC     ports.AlertService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load report catalog: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	reports := postgres.NewReportRepository(db)
	kpis := postgres.NewKPIRepository(db)
	alerts := postgres.NewAlertRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	parser := xlsx.NewParser(catalog)
	engine := usecase.NewAlertEngine(usecase.AlertThresholds{
		MinConnectRatePct:    cfg.AlertMinConnectRatePct,
		MinConversionRatePct: cfg.AlertMinConversionRatePct,
		TPHDropPct:           cfg.AlertTPHDropPct,
		TransferDropPct:      cfg.AlertTransferDropPct,
	})

	aggregateUC := usecase.NewAggregateUseCase(catalog, reports, kpis, alerts, engine, bus, cfg.AlertTrendWindowDays)
	ingestUC := usecase.NewIngestUseCase(parser, reports, storage, bus, aggregateUC)
	kpiQueryUC := usecase.NewKPIQueryUseCase(kpis)
	alertUC := usecase.NewAlertQueryUseCase(alerts, cfg.AlertQueryLimit)

	return &App{
		Config:  cfg,
		Catalog: catalog,
		Bus:     bus,

		IngestUC:    ingestUC,
		AggregateUC: aggregateUC,
		KPIQueryUC:  kpiQueryUC,
		AlertUC:     alertUC,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
