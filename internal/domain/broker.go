package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price observation for one instrument.
type Quote struct {
	Ticker     string
	Price      decimal.Decimal
	PrevClose  decimal.Decimal
	ChangeRate decimal.Decimal
	Venue      string // exchange the quote came from, US only
	Currency   string
	AsOf       time.Time
}

// OrderStatus is the explicit outcome class of an execution attempt.
// Callers branch on it instead of inspecting errors: a skipped order is a
// normal outcome, not a failure.
type OrderStatus string

const (
	OrderSuccess OrderStatus = "success"
	OrderSkipped OrderStatus = "skipped"
	OrderFailed  OrderStatus = "failed"
)

// Skip reasons reported on OrderResult when Status is OrderSkipped.
const (
	SkipMarketClosed       = "market_closed"
	SkipNoHoldings         = "no_holdings"
	SkipInsufficientBudget = "insufficient_budget"
	SkipSlotLimit          = "slot_limit"
	SkipSectorLimit        = "sector_limit"
	SkipAlreadyHolding     = "already_holding"
	SkipAutoTradingOff     = "auto_trading_disabled"
	SkipDryRun             = "dry_run"
	SkipShutdown           = "shutdown"
)

// OrderResult is the outcome of one submit attempt, successful or not.
// Every attempt produces exactly one result regardless of how it ended.
type OrderResult struct {
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"` // populated for skipped/failed
	Market      Market      `json:"market"`
	Ticker      string      `json:"ticker"`
	Action      SignalType  `json:"action"`
	Quantity    int64       `json:"quantity"`
	Price       float64     `json:"price"`
	TotalAmount float64     `json:"total_amount"`
	OrderNo     string      `json:"order_no,omitempty"`
	Message     string      `json:"message,omitempty"`
	AttemptID   string      `json:"attempt_id"`
	Scheduled   bool        `json:"scheduled,omitempty"` // true when deferred to next open
}

// Executed reports whether the attempt actually moved money.
func (r OrderResult) Executed() bool {
	return r.Status == OrderSuccess && r.Quantity > 0
}

// BrokerPosition is a holding as the brokerage reports it, before any local
// ledger reconciliation.
type BrokerPosition struct {
	Ticker       string
	CompanyName  string
	Quantity     int64
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal
	EvalAmount   decimal.Decimal
	ProfitRate   decimal.Decimal
	Currency     string
}

// AccountSummary is a snapshot of buying power and valuation for one market.
type AccountSummary struct {
	Market         Market
	Currency       string
	Cash           decimal.Decimal
	TotalEval      decimal.Decimal
	TotalProfit    decimal.Decimal
	PositionsCount int
}

// BrokerClient abstracts one market's brokerage connection. Implementations
// exist for the domestic and overseas order APIs plus a dry-run stand-in;
// everything above the client (coordinator, replay, handlers) talks to this
// interface so the wire details stay inside one package.
type BrokerClient interface {
	// Market identifies which market this client trades.
	Market() Market

	// CurrentPrice returns the latest quote for the ticker.
	CurrentPrice(ctx context.Context, ticker string) (Quote, error)

	// BuyQuantity computes how many shares the budget affords at the
	// current price: floor(budget / price). A zero result is valid and
	// means the budget cannot cover a single share.
	BuyQuantity(ctx context.Context, ticker string, budget decimal.Decimal) (int64, Quote, error)

	// BuyMarket submits a market buy order.
	BuyMarket(ctx context.Context, ticker string, quantity int64) (OrderResult, error)

	// BuyLimit submits a limit buy order at the given price.
	BuyLimit(ctx context.Context, ticker string, quantity int64, price decimal.Decimal) (OrderResult, error)

	// SellAllMarket liquidates the entire held quantity of the ticker at
	// market. Holding nothing is a skip, not an error.
	SellAllMarket(ctx context.Context, ticker string) (OrderResult, error)

	// Holdings returns current positions as the brokerage sees them.
	Holdings(ctx context.Context) ([]BrokerPosition, error)

	// AccountSummary returns cash and valuation for the account.
	AccountSummary(ctx context.Context) (AccountSummary, error)

	// SmartBuy wraps the calendar gate, sizing and submission into one
	// call: closed market yields a market_closed skip, open market sizes
	// the order from budget and submits it.
	SmartBuy(ctx context.Context, ticker string, budget decimal.Decimal) (OrderResult, error)

	// SmartSellAll wraps the calendar gate and full liquidation.
	SmartSellAll(ctx context.Context, ticker string) (OrderResult, error)
}
