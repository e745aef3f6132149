// Package main is the entry point for the trading execution core. The
// process consumes buy/sell signals from a pub/sub subscription, executes
// them against the KIS brokerage in the configured mode, and keeps a local
// ledger of positions and attempts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaylee/stocklab-trader/internal/config"
	"github.com/jaylee/stocklab-trader/internal/di"
	"github.com/jaylee/stocklab-trader/internal/dispatch"
	"github.com/jaylee/stocklab-trader/internal/events"
	"github.com/jaylee/stocklab-trader/internal/version"
	"github.com/jaylee/stocklab-trader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().
		Str("version", version.Version).
		Str("mode", string(cfg.Mode)).
		Msg("Starting trader")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Emitter.Emit(&events.SystemLifecycleData{
		Type:    events.SystemStarted,
		Version: version.Version,
		Mode:    string(cfg.Mode),
	})

	go func() {
		if err := container.Server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start ops server")
		}
	}()

	container.Replay.Start()
	container.Cron.Start()

	// The subscriber is optional in dry-run; without a project there is no
	// bus and signals can only arrive via replay of previously stored rows.
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	var subscriber *dispatch.Subscriber
	if cfg.PubSubProjectID != "" {
		subscriber, err = dispatch.NewSubscriber(subCtx, dispatch.SubscriberConfig{
			ProjectID:       cfg.PubSubProjectID,
			SubscriptionID:  cfg.PubSubSubscriptionID,
			CredentialsPath: cfg.PubSubCredentialsPath,
		}, container.Dispatcher, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to signal subscription")
		}

		go func() {
			if err := subscriber.Run(subCtx); err != nil {
				log.Error().Err(err).Msg("Subscriber stopped with error")
			}
		}()
	} else {
		log.Warn().Msg("No pub/sub project configured, running without signal intake")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop intake first so nothing new reaches the coordinator, then drain
	// in-flight attempts before the loops and databases go away.
	subCancel()
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing subscriber")
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := container.Coordinator.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("Coordinator drain incomplete")
	}

	container.Replay.Stop()
	container.Cron.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := container.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops server forced to shutdown")
	}

	container.Emitter.Emit(&events.SystemLifecycleData{
		Type:    events.SystemStopped,
		Version: version.Version,
		Mode:    string(cfg.Mode),
	})

	log.Info().Msg("Trader stopped")
}
