package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/calendar"
	"github.com/jaylee/stocklab-trader/internal/clients/kis"
	"github.com/jaylee/stocklab-trader/internal/clients/kis/sdk"
	"github.com/jaylee/stocklab-trader/internal/config"
	"github.com/jaylee/stocklab-trader/internal/coordinator"
	"github.com/jaylee/stocklab-trader/internal/dispatch"
	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/events"
	"github.com/jaylee/stocklab-trader/internal/modules/portfolio"
	"github.com/jaylee/stocklab-trader/internal/notify"
	"github.com/jaylee/stocklab-trader/internal/reliability"
	"github.com/jaylee/stocklab-trader/internal/scheduler"
	"github.com/jaylee/stocklab-trader/internal/server"
)

// InitializeServices builds the business layer on top of the repositories:
// broker clients for the active mode, the coordinator, the dispatcher and the
// background loops.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Emitter = events.NewEmitter(log)
	container.Notifier = notify.New(cfg.WebhookURLs, log)

	container.Admission = portfolio.NewAdmissionService(container.PositionRepo, portfolio.AdmissionConfig{
		MaxPositions:        cfg.MaxPositions,
		MaxPositionsSector:  cfg.MaxPositionsSector,
		SectorConcentration: cfg.SectorConcentration,
	}, log)
	container.Ledger = portfolio.NewService(container.PositionRepo, container.HistoryRepo, log)

	clients, err := buildBrokerClients(cfg, container.Calendar, log)
	if err != nil {
		return err
	}

	container.Coordinator = coordinator.New(
		clients,
		container.Ledger,
		container.Admission,
		container.TradeLogRepo,
		container.Notifier,
		coordinator.Config{
			Mode:              cfg.Mode,
			GlobalConcurrency: int64(cfg.GlobalConcurrency),
			OperationTimeout:  cfg.OperationTimeout,
			UnitAmountKRW:     decimal.NewFromInt(cfg.UnitAmountKRW),
			UnitAmountUSD:     decimal.NewFromFloat(cfg.UnitAmountUSD),
			PrePace:           500 * time.Millisecond,
		},
		log,
	)

	// Event notifications throttle once per source+ticker per KR trading day.
	capacity := domain.NewDailyCapacity(container.Calendar.Timezone(domain.MarketKR))
	container.Dispatcher = dispatch.New(
		cfg.Mode,
		container.Coordinator,
		container.ScheduledRepo,
		container.Calendar,
		container.Notifier,
		container.Emitter,
		capacity,
		log,
	)

	container.Replay = scheduler.NewReplay(
		container.ScheduledRepo,
		container.Coordinator,
		container.Emitter,
		cfg.PollInterval,
		log,
	)

	if err := registerJobs(container, cfg, log); err != nil {
		return err
	}

	container.Server = server.New(server.Config{
		Host: cfg.ServerHost,
		Port: cfg.ServerPort,
		Handlers: server.NewHandlers(
			container.Databases(),
			container.PositionRepo,
			container.TradeLogRepo,
			container.HistoryRepo,
			container.ScheduledRepo,
			container.Replay,
			cfg.Mode,
			log,
		),
		Log: log,
	})

	return nil
}

// buildBrokerClients assembles the per-market client map for the configured
// mode. Demo and real clients share the wire SDK; every live client sits
// behind a circuit breaker.
func buildBrokerClients(cfg *config.Config, cal *calendar.Service, log zerolog.Logger) (map[domain.Market]domain.BrokerClient, error) {
	if cfg.Mode == domain.ModeDryRun {
		return map[domain.Market]domain.BrokerClient{
			domain.MarketKR: kis.NewDryRunClient(domain.MarketKR, log),
			domain.MarketUS: kis.NewDryRunClient(domain.MarketUS, log),
		}, nil
	}

	cano, product := cfg.KIS.AccountParts()
	if product == "" {
		return nil, fmt.Errorf("invalid KIS account number %q", cfg.KIS.AccountNo)
	}

	wire := sdk.NewClient(sdk.Config{
		AppKey:    cfg.KIS.AppKey,
		AppSecret: cfg.KIS.AppSecret,
		AccountNo: cano,
		Product:   product,
		Demo:      cfg.Mode == domain.ModeDemo,
		Log:       log,
	})

	opts := kis.DefaultOptions(cfg.AutoTrading)
	return map[domain.Market]domain.BrokerClient{
		domain.MarketKR: kis.NewBreakerClient(kis.NewDomesticClient(wire, cal, opts, log), log),
		domain.MarketUS: kis.NewBreakerClient(kis.NewOverseasClient(wire, cal, opts, log), log),
	}, nil
}

// registerJobs wires the cron-driven maintenance, backup and summary jobs.
func registerJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Cron = scheduler.NewCron(log)

	maintenance := scheduler.NewMaintenanceJob(container.Databases(), log)
	if err := container.Cron.AddJob(cfg.MaintenanceCron, maintenance); err != nil {
		return fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if cfg.BackupEnabled {
		var uploader reliability.Uploader
		if cfg.S3Endpoint != "" {
			s3, err := reliability.NewS3Uploader(context.Background(), reliability.S3Config{
				Endpoint:        cfg.S3Endpoint,
				Region:          cfg.S3Region,
				Bucket:          cfg.S3Bucket,
				AccessKeyID:     cfg.S3AccessKeyID,
				SecretAccessKey: cfg.S3SecretAccessKey,
			}, log)
			if err != nil {
				return fmt.Errorf("failed to create s3 uploader: %w", err)
			}
			uploader = s3
		}

		backup := reliability.NewBackupService(
			container.Databases(),
			cfg.BackupDir,
			cfg.BackupRetentionDays,
			uploader,
			log,
		)
		if err := container.Cron.AddJob(cfg.BackupCron, reliability.NewBackupJob(backup)); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	summary := scheduler.NewDailySummaryJob(
		container.TradeLogRepo,
		container.PositionRepo,
		container.ScheduledRepo,
		container.Notifier,
		container.Calendar.Timezone(domain.MarketKR),
		log,
	)
	if err := container.Cron.AddJob(cfg.DailySummaryCron, summary); err != nil {
		return fmt.Errorf("failed to register daily summary job: %w", err)
	}

	return nil
}
