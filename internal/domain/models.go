// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the venue group a signal or position belongs to.
// It selects the calendar, the broker client, and the currency.
type Market string

const (
	MarketKR Market = "KR"
	MarketUS Market = "US"
)

// Valid reports whether the market is one the core trades.
func (m Market) Valid() bool {
	return m == MarketKR || m == MarketUS
}

// Currency returns the native currency for per-order budgets on this market.
func (m Market) Currency() string {
	if m == MarketUS {
		return "USD"
	}
	return "KRW"
}

// SignalType represents the intent carried by an incoming signal.
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalEvent SignalType = "EVENT" // observational only, never ordered
)

// Valid reports whether the signal type is a known value.
func (s SignalType) Valid() bool {
	return s == SignalBuy || s == SignalSell || s == SignalEvent
}

// TradeMode selects the broker environment for the whole process lifetime.
type TradeMode string

const (
	// ModeReal trades against the live brokerage account.
	ModeReal TradeMode = "real"
	// ModeDemo trades against the broker's paper-trading environment.
	// Off-hours signals are deferred to the next market open.
	ModeDemo TradeMode = "demo"
	// ModeDryRun replaces every broker call with a log line.
	ModeDryRun TradeMode = "dry-run"
)

// Valid reports whether the mode is a known value.
func (m TradeMode) Valid() bool {
	return m == ModeReal || m == ModeDemo || m == ModeDryRun
}

// ScheduledStatus is the lifecycle state of a deferred order.
// Transitions are pending -> executed or pending -> failed; terminal states
// are never revived.
type ScheduledStatus string

const (
	ScheduledPending  ScheduledStatus = "pending"
	ScheduledExecuted ScheduledStatus = "executed"
	ScheduledFailed   ScheduledStatus = "failed"
)

// ScheduledOrder is a persisted signal awaiting replay at market open.
type ScheduledOrder struct {
	ID            int64           `json:"id"`
	Ticker        string          `json:"ticker"`
	Market        Market          `json:"market"`
	SignalType    SignalType      `json:"signal_type"`
	Price         *float64        `json:"price,omitempty"`
	CompanyName   string          `json:"company_name,omitempty"`
	ExecuteAfter  time.Time       `json:"execute_after"`
	Status        ScheduledStatus `json:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	SignalPayload []byte          `json:"-"` // original wire bytes for faithful replay
	CreatedAt     time.Time       `json:"created_at"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
}

// Position is the bot's view of a currently held ticker. The broker is
// authoritative on quantity; a ticker is either present (held) or absent
// (flat), never partially tracked.
type Position struct {
	ID           int64     `json:"id"`
	Market       Market    `json:"market"`
	Ticker       string    `json:"ticker"`
	CompanyName  string    `json:"company_name,omitempty"`
	BuyPrice     float64   `json:"buy_price"`
	BuyDate      time.Time `json:"buy_date"`
	CurrentPrice float64   `json:"current_price"`
	LastUpdated  time.Time `json:"last_updated"`
	TargetPrice  *float64  `json:"target_price,omitempty"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	TriggerType  string    `json:"trigger_type,omitempty"`
	Sector       string    `json:"sector,omitempty"`
	Scenario     []byte    `json:"scenario,omitempty"` // opaque buy rationale, raw JSON
}

// TradeRecord is one completed round trip, appended to trading history when
// a position is closed.
type TradeRecord struct {
	ID          int64     `json:"id"`
	Market      Market    `json:"market"`
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name,omitempty"`
	BuyPrice    float64   `json:"buy_price"`
	SellPrice   float64   `json:"sell_price"`
	ProfitRate  float64   `json:"profit_rate"`
	HoldingDays int       `json:"holding_days"`
	BuyDate     time.Time `json:"buy_date"`
	SellDate    time.Time `json:"sell_date"`
	Sector      string    `json:"sector,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TradeLog is one row of the append-only trade-execution log. Every order
// attempt produces exactly one row, successful or not.
type TradeLog struct {
	ID          int64      `json:"id"`
	AttemptID   string     `json:"attempt_id"`
	Market      Market     `json:"market"`
	Ticker      string     `json:"ticker"`
	Action      SignalType `json:"action"`
	Quantity    int64      `json:"quantity"`
	Price       float64    `json:"price"`
	TotalAmount float64    `json:"total_amount"`
	OrderNo     string     `json:"order_no,omitempty"`
	Success     bool       `json:"success"`
	Message     string     `json:"message,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ProfitRate computes (sell - buy) / buy. Returns zero when buy is zero,
// which cannot occur for positions admitted through the ledger.
func ProfitRate(buyPrice, sellPrice float64) float64 {
	if buyPrice == 0 {
		return 0
	}
	buy := decimal.NewFromFloat(buyPrice)
	sell := decimal.NewFromFloat(sellPrice)
	rate, _ := sell.Sub(buy).Div(buy).Float64()
	return rate
}

// HoldingDays counts whole days between buy and sell instants.
func HoldingDays(buyDate, sellDate time.Time) int {
	d := int(sellDate.Sub(buyDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
