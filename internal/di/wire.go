package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/calendar"
	"github.com/jaylee/stocklab-trader/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
//  1. Databases (open + migrate)
//  2. Calendar (the scheduled-order repository depends on it)
//  3. Repositories
//  4. Services, broker clients and background loops
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	container.Calendar = calendar.New(calendar.Config{
		ExtraHolidaysKR: cfg.ExtraHolidaysKR,
		ExtraHolidaysUS: cfg.ExtraHolidaysUS,
	}, log)

	InitializeRepositories(container, log)

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().Str("mode", string(cfg.Mode)).Msg("Dependency wiring completed")

	return container, nil
}
