// Package kis provides the brokerage clients for the Korea Investment &
// Securities OpenAPI: a domestic (KRX) client, an overseas (US) client, a
// dry-run stand-in, and a circuit-breaker decorator. All of them implement
// domain.BrokerClient.
package kis

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/clients/kis/sdk"
	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/retry"
)

// SDK is the wire surface the clients consume. *sdk.Client satisfies it;
// tests substitute a fake.
type SDK interface {
	DomesticPrice(ctx context.Context, ticker string) (*sdk.DomesticPriceOutput, error)
	DomesticOrder(ctx context.Context, side sdk.DomesticOrderSide, ticker, ordDvsn string, quantity int64, price string) (*sdk.OrderOutput, error)
	DomesticBalance(ctx context.Context) ([]sdk.DomesticBalanceRow, *sdk.DomesticBalanceSummary, error)
	OverseasPrice(ctx context.Context, excd, ticker string) (*sdk.OverseasPriceOutput, error)
	OverseasOrder(ctx context.Context, side sdk.OverseasOrderSide, exchange, ticker string, quantity int64, price string) (*sdk.OrderOutput, error)
	OverseasBalance(ctx context.Context) ([]sdk.OverseasBalanceRow, *sdk.OverseasBalanceSummary, error)
}

// Compile-time check: the real SDK satisfies the interface the clients mock.
var _ SDK = (*sdk.Client)(nil)

// MarketCalendar is the session oracle the smart order variants gate on.
type MarketCalendar interface {
	IsOpen(market domain.Market, t time.Time) bool
}

// Options carries the trading policy shared by both market clients.
type Options struct {
	// AutoTrading false short-circuits every order to a skip before any
	// wire call.
	AutoTrading bool
	// PrePace is the pause between a price query and the subsequent
	// order call inside the smart variants.
	PrePace time.Duration
	// Settle is the pause after order submission.
	Settle time.Duration
}

// DefaultOptions reflect the venue's published rate guidance.
func DefaultOptions(autoTrading bool) Options {
	return Options{
		AutoTrading: autoTrading,
		PrePace:     500 * time.Millisecond,
		Settle:      100 * time.Millisecond,
	}
}

// priceReadRetry wraps idempotent reads; order placement is never retried.
var priceReadRetry = retry.Config{
	MaxRetries:     2,
	InitialBackoff: 300 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// transientRead reports whether a read failure is worth retrying: transport
// errors yes, structured venue rejections no.
func transientRead(err error) bool {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// classifyBrokerErr maps a wire failure onto the domain error taxonomy.
func classifyBrokerErr(err error, msg string) error {
	var apiErr *sdk.APIError
	switch {
	case errors.As(err, &apiErr):
		return domain.WrapError(domain.ErrBrokerRejected, err, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTimeout, err, msg)
	default:
		return domain.WrapError(domain.ErrBrokerRejected, err, msg)
	}
}

// parseDecimal converts a KIS decimal string, treating empty as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// quantityFor computes floor(budget / price). Zero when the budget cannot
// cover one share; never negative.
func quantityFor(budget, price decimal.Decimal) int64 {
	if price.IsZero() || price.IsNegative() || budget.LessThan(price) {
		return 0
	}
	return budget.Div(price).IntPart()
}

// sleepCtx pauses without ignoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func skipped(market domain.Market, ticker string, action domain.SignalType, reason string) domain.OrderResult {
	return domain.OrderResult{
		Status: domain.OrderSkipped,
		Reason: reason,
		Market: market,
		Ticker: ticker,
		Action: action,
	}
}
