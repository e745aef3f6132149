package portfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
	testhelper "github.com/jaylee/stocklab-trader/internal/testing"
)

func newService(t *testing.T) (*Service, *PositionRepository, *HistoryRepository) {
	t.Helper()
	portfolioDB, _ := testhelper.NewTestDB(t, "portfolio")
	ledgerDB, _ := testhelper.NewTestDB(t, "ledger")

	positions := NewPositionRepository(portfolioDB.Conn(), zerolog.Nop())
	history := NewHistoryRepository(ledgerDB.Conn(), zerolog.Nop())
	return NewService(positions, history, zerolog.Nop()), positions, history
}

func buyResult(ticker string, price float64) domain.OrderResult {
	return domain.OrderResult{
		Status:   domain.OrderSuccess,
		Market:   domain.MarketUS,
		Ticker:   ticker,
		Action:   domain.SignalBuy,
		Quantity: 3,
		Price:    price,
	}
}

func sellResult(ticker string, price float64) domain.OrderResult {
	return domain.OrderResult{
		Status:   domain.OrderSuccess,
		Market:   domain.MarketUS,
		Ticker:   ticker,
		Action:   domain.SignalSell,
		Quantity: 3,
		Price:    price,
	}
}

func TestRecordBuyOpensPosition(t *testing.T) {
	svc, positions, _ := newService(t)

	signal := domain.Signal{
		Ticker:      "AAPL",
		Market:      domain.MarketUS,
		Type:        domain.SignalBuy,
		CompanyName: "Apple Inc",
		Sector:      "tech",
		TriggerType: "breakout",
	}

	require.NoError(t, svc.RecordBuy(signal, buyResult("AAPL", 182.53)))

	got, err := positions.Get(domain.MarketUS, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 182.53, got.BuyPrice)
	assert.Equal(t, "Apple Inc", got.CompanyName)
	assert.Equal(t, "tech", got.Sector)
	assert.Equal(t, "breakout", got.TriggerType)
}

func TestRecordBuyIgnoresSkippedResult(t *testing.T) {
	svc, positions, _ := newService(t)

	result := domain.OrderResult{
		Status: domain.OrderSkipped,
		Reason: domain.SkipMarketClosed,
		Market: domain.MarketUS,
		Ticker: "AAPL",
	}
	require.NoError(t, svc.RecordBuy(domain.Signal{Ticker: "AAPL", Market: domain.MarketUS}, result))

	count, err := positions.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecordSellClosesRoundTrip(t *testing.T) {
	svc, positions, history := newService(t)

	require.NoError(t, positions.Create(domain.Position{
		Market:   domain.MarketUS,
		Ticker:   "AAPL",
		BuyPrice: 150,
		BuyDate:  time.Now().UTC().AddDate(0, 0, -10),
		Sector:   "tech",
	}))

	require.NoError(t, svc.RecordSell(sellResult("AAPL", 165)))

	got, err := positions.Get(domain.MarketUS, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, got, "position removed after the sell")

	records, err := history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AAPL", records[0].Ticker)
	assert.Equal(t, float64(150), records[0].BuyPrice)
	assert.Equal(t, float64(165), records[0].SellPrice)
	assert.InDelta(t, 0.1, records[0].ProfitRate, 1e-9)
	assert.Equal(t, 10, records[0].HoldingDays)
	assert.Equal(t, "tech", records[0].Sector)
}

func TestRecordSellUntrackedTickerIsNoOp(t *testing.T) {
	svc, _, history := newService(t)

	require.NoError(t, svc.RecordSell(sellResult("AAPL", 165)))

	records, err := history.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
