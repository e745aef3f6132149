// Package scheduler owns the background loops: the deferred-order replay
// goroutine and the cron-driven maintenance, backup and summary jobs.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// CronScheduler manages wall-clock jobs. The replay loop is not one of them;
// it runs on its own goroutine (see ReplayScheduler) because a poll interval
// is an interval, not a schedule.
type CronScheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewCron creates a cron scheduler using standard five-field expressions.
// CRON_TZ prefixes are honored, which the daily summary needs to fire after
// the KR close regardless of host timezone.
func NewCron(log zerolog.Logger) *CronScheduler {
	return &CronScheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "cron").Logger(),
	}
}

// AddJob registers a job with a cron schedule.
// Schedule examples:
//   - "0 2 * * *"                      - daily at 02:00 local
//   - "CRON_TZ=Asia/Seoul 40 15 * * 1-5" - weekdays 15:40 KST
//   - "@hourly"                        - every hour
func (s *CronScheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("Job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// Start starts the scheduler.
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Cron scheduler started")
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Cron scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule.
func (s *CronScheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}
