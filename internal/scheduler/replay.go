package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/events"
)

// OrderStore is the deferred-order queue surface the replay loop consumes.
type OrderStore interface {
	TakeReady(now time.Time) ([]domain.ScheduledOrder, error)
	MarkExecuted(id int64) error
	MarkFailed(id int64, message string) error
}

// Submitter executes one reconstructed signal to a terminal result.
type Submitter interface {
	Submit(ctx context.Context, signal domain.Signal) domain.OrderResult
}

// ReplayScheduler replays deferred orders once their market opens. One
// goroutine, one iteration at a time: a tick that fires while an iteration
// is still running is simply the next loop pass, never an overlap.
type ReplayScheduler struct {
	store    OrderStore
	submit   Submitter
	emitter  *events.Emitter
	interval time.Duration
	log      zerolog.Logger

	stop    chan struct{}
	trigger chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewReplay creates the replay scheduler.
func NewReplay(store OrderStore, submit Submitter, emitter *events.Emitter, interval time.Duration, log zerolog.Logger) *ReplayScheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ReplayScheduler{
		store:    store,
		submit:   submit,
		emitter:  emitter,
		interval: interval,
		log:      log.With().Str("component", "replay").Logger(),
		stop:     make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop. The first iteration runs immediately so orders
// whose execute_after elapsed during downtime are caught without waiting a
// full interval.
func (s *ReplayScheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Warn().Msg("Replay scheduler already started, ignoring")
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runOnce()
			case <-s.trigger:
				s.runOnce()
			}
		}
	}()

	s.log.Info().Dur("interval", s.interval).Msg("Replay scheduler started")
}

// Stop lets the current iteration finish and prevents new ones. Pending rows
// stay in the store for the next process.
func (s *ReplayScheduler) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("Replay scheduler stopped")
}

// TriggerNow nudges the loop to run an extra iteration. Used by the ops
// endpoint; a nudge while an iteration is queued coalesces into one.
func (s *ReplayScheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// runOnce takes everything ready right now and replays it sequentially.
// Results are terminal either way: success or skip finalizes the row as
// executed, a failed result or submit error finalizes it as failed. Failed
// rows are never retried.
func (s *ReplayScheduler) runOnce() {
	now := time.Now()

	ready, err := s.store.TakeReady(now)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read ready orders")
		return
	}
	if len(ready) == 0 {
		return
	}

	s.log.Info().Int("count", len(ready)).Msg("Replaying deferred orders")

	for _, order := range ready {
		select {
		case <-s.stop:
			// Shutdown mid-iteration: remaining rows stay pending.
			return
		default:
		}

		result := s.submit.Submit(context.Background(), reconstructSignal(order))

		s.emitter.Emit(&events.OrderReplayedData{
			ID:     order.ID,
			Market: string(order.Market),
			Ticker: order.Ticker,
			Status: string(result.Status),
			Reason: result.Reason,
		})

		if result.Status == domain.OrderSkipped && result.Reason == domain.SkipMarketClosed {
			// The market closed between TakeReady and submission. Leave the
			// row pending; the next tick picks it up at the next open.
			s.log.Warn().Int64("id", order.ID).Msg("Market closed mid-replay, order stays pending")
			continue
		}

		if result.Status == domain.OrderFailed {
			message := result.Message
			if message == "" {
				message = result.Reason
			}
			if err := s.store.MarkFailed(order.ID, message); err != nil {
				s.log.Error().Err(err).Int64("id", order.ID).Msg("Failed to finalize replayed order")
			}
			continue
		}

		if err := s.store.MarkExecuted(order.ID); err != nil {
			s.log.Error().Err(err).Int64("id", order.ID).Msg("Failed to finalize replayed order")
		}
	}
}

// reconstructSignal rebuilds the signal for one stored row. The original
// wire payload is authoritative because it carries the pass-through fields
// (sector, scenario, stops); the row's own columns are the fallback when the
// payload is missing or no longer parses.
func reconstructSignal(order domain.ScheduledOrder) domain.Signal {
	if len(order.SignalPayload) > 0 {
		if signal, err := domain.ParseSignal(order.SignalPayload); err == nil {
			return signal
		}
	}

	signal := domain.Signal{
		Ticker:      order.Ticker,
		CompanyName: order.CompanyName,
		Type:        order.SignalType,
		Market:      order.Market,
		Timestamp:   order.CreatedAt,
	}
	if order.Price != nil {
		price := decimal.NewFromFloat(*order.Price)
		signal.Price = &price
	}
	return signal
}
