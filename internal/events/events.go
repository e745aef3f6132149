// Package events emits typed system events as structured log records.
// Events are the observability feed for dashboards and log shippers; nothing
// in the execution path depends on them being delivered.
package events

import (
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event being emitted.
type EventType string

const (
	TradeExecuted  EventType = "trade_executed"
	OrderScheduled EventType = "order_scheduled"
	OrderReplayed  EventType = "order_replayed"
	PositionOpened EventType = "position_opened"
	PositionClosed EventType = "position_closed"
	SignalRejected EventType = "signal_rejected"
	MarketEvent    EventType = "market_event"
	SystemStarted  EventType = "system_started"
	SystemStopped  EventType = "system_stopped"
)

// EventData is implemented by all typed event payloads.
type EventData interface {
	// EventType returns the event type this data is associated with.
	EventType() EventType
}

// TradeExecutedData contains data for TradeExecuted events.
type TradeExecutedData struct {
	Market    string  `json:"market"`
	Ticker    string  `json:"ticker"`
	Action    string  `json:"action"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	OrderNo   string  `json:"order_no,omitempty"`
	AttemptID string  `json:"attempt_id,omitempty"`
	Success   bool    `json:"success"`
}

// EventType returns the event type for TradeExecutedData.
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// OrderScheduledData contains data for OrderScheduled events.
type OrderScheduledData struct {
	ID           int64     `json:"id"`
	Market       string    `json:"market"`
	Ticker       string    `json:"ticker"`
	SignalType   string    `json:"signal_type"`
	ExecuteAfter time.Time `json:"execute_after"`
}

// EventType returns the event type for OrderScheduledData.
func (d *OrderScheduledData) EventType() EventType {
	return OrderScheduled
}

// OrderReplayedData contains data for OrderReplayed events.
type OrderReplayedData struct {
	ID     int64  `json:"id"`
	Market string `json:"market"`
	Ticker string `json:"ticker"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// EventType returns the event type for OrderReplayedData.
func (d *OrderReplayedData) EventType() EventType {
	return OrderReplayed
}

// PositionOpenedData contains data for PositionOpened events.
type PositionOpenedData struct {
	Market   string  `json:"market"`
	Ticker   string  `json:"ticker"`
	BuyPrice float64 `json:"buy_price"`
}

// EventType returns the event type for PositionOpenedData.
func (d *PositionOpenedData) EventType() EventType {
	return PositionOpened
}

// PositionClosedData contains data for PositionClosed events.
type PositionClosedData struct {
	Market     string  `json:"market"`
	Ticker     string  `json:"ticker"`
	SellPrice  float64 `json:"sell_price"`
	ProfitRate float64 `json:"profit_rate"`
}

// EventType returns the event type for PositionClosedData.
func (d *PositionClosedData) EventType() EventType {
	return PositionClosed
}

// SignalRejectedData contains data for SignalRejected events.
type SignalRejectedData struct {
	Reason  string `json:"reason"`
	Payload string `json:"payload,omitempty"`
}

// EventType returns the event type for SignalRejectedData.
func (d *SignalRejectedData) EventType() EventType {
	return SignalRejected
}

// MarketEventData contains data for MarketEvent events. These come from
// EVENT signals, which are observational and never ordered.
type MarketEventData struct {
	Market  string `json:"market"`
	Ticker  string `json:"ticker"`
	Source  string `json:"source,omitempty"`
	Company string `json:"company,omitempty"`
}

// EventType returns the event type for MarketEventData.
func (d *MarketEventData) EventType() EventType {
	return MarketEvent
}

// SystemLifecycleData contains data for SystemStarted and SystemStopped
// events.
type SystemLifecycleData struct {
	Type    EventType `json:"-"`
	Version string    `json:"version"`
	Mode    string    `json:"mode"`
}

// EventType returns the lifecycle phase this data describes.
func (d *SystemLifecycleData) EventType() EventType {
	return d.Type
}

// Emitter writes events to the structured log. Safe for concurrent use.
type Emitter struct {
	log zerolog.Logger
}

// NewEmitter creates an event emitter.
func NewEmitter(log zerolog.Logger) *Emitter {
	return &Emitter{
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit records one event. The payload is flattened into the log record under
// the "data" key so log consumers can filter on event_type alone.
func (e *Emitter) Emit(data EventData) {
	e.log.Info().
		Str("event_type", string(data.EventType())).
		Time("event_time", time.Now().UTC()).
		Interface("data", data).
		Msg("Event emitted")
}
