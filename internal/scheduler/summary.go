package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// TradeCounter reports today's execution-log counts.
type TradeCounter interface {
	CountSince(cutoff time.Time) (succeeded, failed int, err error)
}

// PositionLister reports the open book.
type PositionLister interface {
	List() ([]domain.Position, error)
}

// PendingCounter reports deferred orders still awaiting replay.
type PendingCounter interface {
	PendingCount() (int, error)
}

// SummaryNotifier delivers the summary text.
type SummaryNotifier interface {
	NotifyText(text string)
}

// DailySummaryJob posts one end-of-day digest to the webhooks: trade counts,
// open positions, and the deferred-order backlog. Scheduled after the KR
// close on weekdays.
type DailySummaryJob struct {
	trades    TradeCounter
	positions PositionLister
	pending   PendingCounter
	notifier  SummaryNotifier
	loc       *time.Location
	log       zerolog.Logger
}

// NewDailySummaryJob creates the job. The location defines "today" for the
// trade counts; the KR session anchors the trading day.
func NewDailySummaryJob(
	trades TradeCounter,
	positions PositionLister,
	pending PendingCounter,
	notifier SummaryNotifier,
	loc *time.Location,
	log zerolog.Logger,
) *DailySummaryJob {
	if loc == nil {
		loc = time.UTC
	}
	return &DailySummaryJob{
		trades:    trades,
		positions: positions,
		pending:   pending,
		notifier:  notifier,
		loc:       loc,
		log:       log.With().Str("job", "daily_summary").Logger(),
	}
}

// Name implements Job.
func (j *DailySummaryJob) Name() string { return "daily_summary" }

// Run builds and sends the digest.
func (j *DailySummaryJob) Run() error {
	now := time.Now().In(j.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.loc)

	succeeded, failed, err := j.trades.CountSince(midnight)
	if err != nil {
		return fmt.Errorf("failed to count today's trades: %w", err)
	}

	positions, err := j.positions.List()
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}

	pending, err := j.pending.PendingCount()
	if err != nil {
		return fmt.Errorf("failed to count pending orders: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily summary %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Trades: %d executed, %d failed\n", succeeded, failed)
	fmt.Fprintf(&b, "Open positions: %d\n", len(positions))
	for _, p := range positions {
		fmt.Fprintf(&b, "  [%s] %s @ %.2f since %s\n",
			p.Market, p.Ticker, p.BuyPrice, p.BuyDate.In(j.loc).Format("01-02"))
	}
	fmt.Fprintf(&b, "Scheduled orders pending: %d", pending)

	j.notifier.NotifyText(b.String())
	j.log.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("positions", len(positions)).
		Int("pending", pending).
		Msg("Daily summary sent")

	return nil
}
