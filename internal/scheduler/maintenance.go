package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/database"
)

// MaintenanceJob keeps the SQLite files healthy: WAL checkpoint, integrity
// check, and size reporting for each database. Runs nightly outside both
// market sessions.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates the job over the given databases.
func NewMaintenanceJob(databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name implements Job.
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run checkpoints and verifies every database. One failing database does not
// stop the others; the first error is reported after all have been visited.
func (j *MaintenanceJob) Run() error {
	var firstErr error

	for _, db := range j.databases {
		if err := j.maintain(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Maintenance failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (j *MaintenanceJob) maintain(db *database.DB) error {
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	j.log.Info().
		Str("database", db.Name()).
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_bytes", stats.WALSizeBytes).
		Int64("free_pages", stats.FreelistCount).
		Msg("Database maintenance completed")

	return nil
}
