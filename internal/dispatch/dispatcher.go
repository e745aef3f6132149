// Package dispatch receives signals from the bus and routes each one to
// immediate execution, the deferred-order store, or the event pipeline. The
// ack decision travels back to the transport so redelivery semantics stay in
// one place.
package dispatch

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/events"
)

// Outcome tells the transport what to do with the bus message.
type Outcome int

const (
	// Ack removes the message from the subscription. Emitted only after
	// the coordinator handoff or persistent enqueue has completed.
	Ack Outcome = iota
	// Nack returns the message for redelivery.
	Nack
)

// Coordinator is the execution handoff the dispatcher needs.
type Coordinator interface {
	SubmitAsync(signal domain.Signal)
}

// Store is the deferred-order queue used when the market is closed in demo
// mode.
type Store interface {
	Enqueue(signal domain.Signal, executeAfter time.Time) (int64, error)
}

// Calendar answers market-session questions for the deferral decision.
type Calendar interface {
	IsOpen(market domain.Market, t time.Time) bool
	NextOpen(market domain.Market, t time.Time) time.Time
}

// Notifier carries the dispatcher's human-facing notifications.
type Notifier interface {
	NotifyScheduled(signal domain.Signal, executeAfter time.Time)
	NotifyMarketEvent(signal domain.Signal)
}

// Dispatcher applies the mode/market-open policy matrix to validated signals.
type Dispatcher struct {
	mode        domain.TradeMode
	coordinator Coordinator
	store       Store
	calendar    Calendar
	notifier    Notifier
	emitter     *events.Emitter
	capacity    *domain.DailyCapacity
	log         zerolog.Logger
}

// New creates a dispatcher.
func New(
	mode domain.TradeMode,
	coordinator Coordinator,
	store Store,
	calendar Calendar,
	notifier Notifier,
	emitter *events.Emitter,
	capacity *domain.DailyCapacity,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		mode:        mode,
		coordinator: coordinator,
		store:       store,
		calendar:    calendar,
		notifier:    notifier,
		emitter:     emitter,
		capacity:    capacity,
		log:         log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch handles one raw bus payload and returns the ack decision.
//
// Policy matrix:
//
//	real mode             -> coordinator, open or closed (the venue queues
//	                         or rejects off-hours orders itself)
//	demo mode, open       -> coordinator
//	demo mode, closed     -> scheduled store, replayed at next open
//	dry-run, any          -> coordinator (log-only client, nothing persisted)
//
// Schema violations and enqueue failures nack; everything else acks once the
// handoff completed.
func (d *Dispatcher) Dispatch(payload []byte) Outcome {
	signal, err := domain.ParseSignal(payload)
	if err != nil {
		d.log.Warn().Err(err).
			Str("payload", truncate(payload, 256)).
			Msg("Rejected malformed signal")
		d.emitter.Emit(&events.SignalRejectedData{
			Reason:  err.Error(),
			Payload: truncate(payload, 256),
		})
		return Nack
	}

	if signal.Type == domain.SignalEvent {
		return d.dispatchEvent(signal)
	}

	now := time.Now()
	if d.mode == domain.ModeDemo && !d.calendar.IsOpen(signal.Market, now) {
		return d.defer_(signal, now)
	}

	d.coordinator.SubmitAsync(signal)
	d.log.Info().
		Str("market", string(signal.Market)).
		Str("ticker", signal.Ticker).
		Str("signal_type", string(signal.Type)).
		Str("source", signal.Source).
		Msg("Signal handed to coordinator")
	return Ack
}

// dispatchEvent handles observational EVENT signals: never ordered, one
// notification per source+ticker per day.
func (d *Dispatcher) dispatchEvent(signal domain.Signal) Outcome {
	d.emitter.Emit(&events.MarketEventData{
		Market:  string(signal.Market),
		Ticker:  signal.Ticker,
		Source:  signal.Source,
		Company: signal.CompanyName,
	})

	key := signal.Source + ":" + signal.Ticker
	if d.capacity.CheckAndMark(key) {
		d.notifier.NotifyMarketEvent(signal)
	} else {
		d.log.Debug().
			Str("ticker", signal.Ticker).
			Str("source", signal.Source).
			Msg("Event notification throttled for today")
	}
	return Ack
}

// defer_ persists the signal for replay at the next market open. A storage
// failure nacks so the bus redelivers; the store does not dedupe, so the
// dispatcher relies on the bus not delivering the same message twice after a
// successful ack.
func (d *Dispatcher) defer_(signal domain.Signal, now time.Time) Outcome {
	executeAfter := d.calendar.NextOpen(signal.Market, now)

	id, err := d.store.Enqueue(signal, executeAfter)
	if err != nil {
		d.log.Error().Err(err).
			Str("ticker", signal.Ticker).
			Msg("Failed to persist deferred order")
		return Nack
	}

	d.emitter.Emit(&events.OrderScheduledData{
		ID:           id,
		Market:       string(signal.Market),
		Ticker:       signal.Ticker,
		SignalType:   string(signal.Type),
		ExecuteAfter: executeAfter,
	})
	d.notifier.NotifyScheduled(signal, executeAfter)
	return Ack
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
