package kis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jaylee/stocklab-trader/internal/clients/kis/sdk"
	"github.com/jaylee/stocklab-trader/internal/domain"
)

// fakeSDK substitutes the wire layer; each field overrides one endpoint.
type fakeSDK struct {
	domesticPrice   func(ctx context.Context, ticker string) (*sdk.DomesticPriceOutput, error)
	domesticOrder   func(ctx context.Context, side sdk.DomesticOrderSide, ticker, ordDvsn string, quantity int64, price string) (*sdk.OrderOutput, error)
	domesticBalance func(ctx context.Context) ([]sdk.DomesticBalanceRow, *sdk.DomesticBalanceSummary, error)
	overseasPrice   func(ctx context.Context, excd, ticker string) (*sdk.OverseasPriceOutput, error)
	overseasOrder   func(ctx context.Context, side sdk.OverseasOrderSide, exchange, ticker string, quantity int64, price string) (*sdk.OrderOutput, error)
	overseasBalance func(ctx context.Context) ([]sdk.OverseasBalanceRow, *sdk.OverseasBalanceSummary, error)
}

var _ SDK = (*fakeSDK)(nil)

func (f *fakeSDK) DomesticPrice(ctx context.Context, ticker string) (*sdk.DomesticPriceOutput, error) {
	return f.domesticPrice(ctx, ticker)
}

func (f *fakeSDK) DomesticOrder(ctx context.Context, side sdk.DomesticOrderSide, ticker, ordDvsn string, quantity int64, price string) (*sdk.OrderOutput, error) {
	return f.domesticOrder(ctx, side, ticker, ordDvsn, quantity, price)
}

func (f *fakeSDK) DomesticBalance(ctx context.Context) ([]sdk.DomesticBalanceRow, *sdk.DomesticBalanceSummary, error) {
	return f.domesticBalance(ctx)
}

func (f *fakeSDK) OverseasPrice(ctx context.Context, excd, ticker string) (*sdk.OverseasPriceOutput, error) {
	return f.overseasPrice(ctx, excd, ticker)
}

func (f *fakeSDK) OverseasOrder(ctx context.Context, side sdk.OverseasOrderSide, exchange, ticker string, quantity int64, price string) (*sdk.OrderOutput, error) {
	return f.overseasOrder(ctx, side, exchange, ticker, quantity, price)
}

func (f *fakeSDK) OverseasBalance(ctx context.Context) ([]sdk.OverseasBalanceRow, *sdk.OverseasBalanceSummary, error) {
	return f.overseasBalance(ctx)
}

// stubCalendar reports a fixed session state for every market.
type stubCalendar struct{ open bool }

func (s stubCalendar) IsOpen(domain.Market, time.Time) bool { return s.open }

// testOptions drops the pacing pauses so tests run instantly.
func testOptions(autoTrading bool) Options {
	return Options{AutoTrading: autoTrading}
}

func testLog() zerolog.Logger { return zerolog.Nop() }

func TestQuantityFor(t *testing.T) {
	tests := []struct {
		name   string
		budget string
		price  string
		want   int64
	}{
		{"exact multiple", "100000", "10000", 10},
		{"floors remainder", "105000", "10000", 10},
		{"budget below price", "5000", "10000", 0},
		{"zero price", "100000", "0", 0},
		{"fractional price", "500", "182.53", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget, _ := decimal.NewFromString(tt.budget)
			price, _ := decimal.NewFromString(tt.price)
			assert.Equal(t, tt.want, quantityFor(budget, price))
		})
	}
}

func TestParseDecimal(t *testing.T) {
	assert.True(t, parseDecimal("").IsZero())
	assert.True(t, parseDecimal("garbage").IsZero())
	assert.Equal(t, "71000", parseDecimal("71000").String())
	assert.Equal(t, "182.53", parseDecimal("182.53").String())
}

func TestTransientRead(t *testing.T) {
	assert.True(t, transientRead(&sdk.APIError{StatusCode: 502}))
	assert.False(t, transientRead(&sdk.APIError{StatusCode: 200, Code: "EGW00123"}))
	assert.False(t, transientRead(context.Canceled))
	assert.False(t, transientRead(context.DeadlineExceeded))
	assert.True(t, transientRead(assert.AnError))
}

func TestClassifyBrokerErr(t *testing.T) {
	err := classifyBrokerErr(&sdk.APIError{Code: "APBK0919", Message: "insufficient funds"}, "order rejected")
	assert.Equal(t, domain.ErrBrokerRejected, domain.KindOf(err))

	err = classifyBrokerErr(context.DeadlineExceeded, "order timed out")
	assert.Equal(t, domain.ErrTimeout, domain.KindOf(err))
}
