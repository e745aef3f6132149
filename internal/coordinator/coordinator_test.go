package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/modules/portfolio"
	"github.com/jaylee/stocklab-trader/internal/modules/trading"
	testhelper "github.com/jaylee/stocklab-trader/internal/testing"
)

// fakeClient scripts broker behavior per method. Unset hooks return zero
// values so tests only script what they assert on.
type fakeClient struct {
	market domain.Market

	mu            sync.Mutex
	orderCalls    int
	smartBuyFn    func(ticker string) (domain.OrderResult, error)
	smartBuyCtxFn func(ctx context.Context, ticker string) (domain.OrderResult, error)
	smartSellFn   func(ticker string) (domain.OrderResult, error)
	quantity      int64
	quote         domain.Quote
	buyResultFn   func(ticker string, quantity int64) (domain.OrderResult, error)
}

func (f *fakeClient) Market() domain.Market { return f.market }

func (f *fakeClient) CurrentPrice(_ context.Context, ticker string) (domain.Quote, error) {
	return f.quote, nil
}

func (f *fakeClient) BuyQuantity(_ context.Context, ticker string, _ decimal.Decimal) (int64, domain.Quote, error) {
	return f.quantity, f.quote, nil
}

func (f *fakeClient) BuyMarket(_ context.Context, ticker string, quantity int64) (domain.OrderResult, error) {
	f.mu.Lock()
	f.orderCalls++
	f.mu.Unlock()
	if f.buyResultFn != nil {
		return f.buyResultFn(ticker, quantity)
	}
	return domain.OrderResult{}, nil
}

func (f *fakeClient) BuyLimit(_ context.Context, _ string, _ int64, _ decimal.Decimal) (domain.OrderResult, error) {
	return domain.OrderResult{}, nil
}

func (f *fakeClient) SellAllMarket(_ context.Context, ticker string) (domain.OrderResult, error) {
	if f.smartSellFn != nil {
		return f.smartSellFn(ticker)
	}
	return domain.OrderResult{}, nil
}

func (f *fakeClient) Holdings(_ context.Context) ([]domain.BrokerPosition, error) {
	return nil, nil
}

func (f *fakeClient) AccountSummary(_ context.Context) (domain.AccountSummary, error) {
	return domain.AccountSummary{}, nil
}

func (f *fakeClient) SmartBuy(ctx context.Context, ticker string, _ decimal.Decimal) (domain.OrderResult, error) {
	f.mu.Lock()
	f.orderCalls++
	f.mu.Unlock()
	if f.smartBuyCtxFn != nil {
		return f.smartBuyCtxFn(ctx, ticker)
	}
	if f.smartBuyFn != nil {
		return f.smartBuyFn(ticker)
	}
	return domain.OrderResult{}, nil
}

func (f *fakeClient) SmartSellAll(_ context.Context, ticker string) (domain.OrderResult, error) {
	if f.smartSellFn != nil {
		return f.smartSellFn(ticker)
	}
	return domain.OrderResult{}, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderCalls
}

type resultRecorder struct {
	mu      sync.Mutex
	results []domain.OrderResult
}

func (r *resultRecorder) NotifyResult(result domain.OrderResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) all() []domain.OrderResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OrderResult(nil), r.results...)
}

type fixture struct {
	coordinator *Coordinator
	client      *fakeClient
	positions   *portfolio.PositionRepository
	history     *portfolio.HistoryRepository
	tradeLog    *trading.TradeLogRepository
	notifier    *resultRecorder
}

func newFixture(t *testing.T, mode domain.TradeMode) *fixture {
	t.Helper()

	ledgerDB, _ := testhelper.NewTestDB(t, "ledger")
	portfolioDB, _ := testhelper.NewTestDB(t, "portfolio")

	log := zerolog.Nop()
	positions := portfolio.NewPositionRepository(portfolioDB.Conn(), log)
	history := portfolio.NewHistoryRepository(ledgerDB.Conn(), log)
	tradeLog := trading.NewTradeLogRepository(ledgerDB.Conn(), log)

	client := &fakeClient{market: domain.MarketKR}
	notifier := &resultRecorder{}

	c := New(
		map[domain.Market]domain.BrokerClient{domain.MarketKR: client},
		portfolio.NewService(positions, history, log),
		portfolio.NewAdmissionService(positions, portfolio.AdmissionConfig{
			MaxPositions:        10,
			MaxPositionsSector:  2,
			SectorConcentration: 0.5,
		}, log),
		tradeLog,
		notifier,
		Config{
			Mode:              mode,
			GlobalConcurrency: 3,
			OperationTimeout:  5 * time.Second,
			UnitAmountKRW:     decimal.NewFromInt(300000),
			UnitAmountUSD:     decimal.NewFromInt(200),
		},
		log,
	)

	return &fixture{
		coordinator: c,
		client:      client,
		positions:   positions,
		history:     history,
		tradeLog:    tradeLog,
		notifier:    notifier,
	}
}

func buySignal(ticker string) domain.Signal {
	return domain.Signal{
		Ticker: ticker,
		Market: domain.MarketKR,
		Type:   domain.SignalBuy,
		Sector: "Technology",
	}
}

func sellSignal(ticker string) domain.Signal {
	return domain.Signal{
		Ticker: ticker,
		Market: domain.MarketKR,
		Type:   domain.SignalSell,
	}
}

func TestBuyOpensPositionAndAppendsLog(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	f.client.smartBuyFn = func(ticker string) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:      domain.OrderSuccess,
			Market:      domain.MarketKR,
			Ticker:      ticker,
			Action:      domain.SignalBuy,
			Quantity:    4,
			Price:       68000,
			TotalAmount: 272000,
			OrderNo:     "KRX0001",
		}, nil
	}

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	require.Equal(t, domain.OrderSuccess, result.Status)
	assert.NotEmpty(t, result.AttemptID)

	position, err := f.positions.Get(domain.MarketKR, "005930")
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.Equal(t, 68000.0, position.BuyPrice)
	assert.Equal(t, "Technology", position.Sector)

	logs, err := f.tradeLog.Recent(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "KRX0001", logs[0].OrderNo)
	assert.Equal(t, result.AttemptID, logs[0].AttemptID)

	require.Len(t, f.notifier.all(), 1)
}

func TestBuySkippedWhenAlreadyHolding(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	require.NoError(t, f.positions.Create(domain.Position{
		Market:   domain.MarketKR,
		Ticker:   "005930",
		BuyPrice: 60000,
		BuyDate:  time.Now().UTC(),
	}))

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderSkipped, result.Status)
	assert.Equal(t, domain.SkipAlreadyHolding, result.Reason)
	// Admission refused before any broker call.
	assert.Zero(t, f.client.calls())
}

func TestRealBuySizesAgainstQuote(t *testing.T) {
	f := newFixture(t, domain.ModeReal)
	f.client.quantity = 4
	f.client.quote = domain.Quote{Ticker: "005930", Price: decimal.NewFromInt(68000)}
	f.client.buyResultFn = func(ticker string, quantity int64) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:   domain.OrderSuccess,
			Market:   domain.MarketKR,
			Ticker:   ticker,
			Action:   domain.SignalBuy,
			Quantity: quantity,
			OrderNo:  "KRX0002",
		}, nil
	}

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	require.Equal(t, domain.OrderSuccess, result.Status)
	assert.Equal(t, int64(4), result.Quantity)
	// The direct path fills in price and amount from the sizing quote.
	assert.Equal(t, 68000.0, result.Price)
	assert.Equal(t, 272000.0, result.TotalAmount)
}

func TestRealBuySkipsWhenBudgetTooSmall(t *testing.T) {
	f := newFixture(t, domain.ModeReal)
	f.client.quantity = 0
	f.client.quote = domain.Quote{Ticker: "005930", Price: decimal.NewFromInt(999999999)}

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderSkipped, result.Status)
	assert.Equal(t, domain.SkipInsufficientBudget, result.Reason)
	assert.Zero(t, f.client.calls())
}

func TestDryRunBypassesPersistence(t *testing.T) {
	f := newFixture(t, domain.ModeDryRun)
	f.client.smartBuyFn = func(ticker string) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:   domain.OrderSkipped,
			Reason:   domain.SkipDryRun,
			Market:   domain.MarketKR,
			Ticker:   ticker,
			Action:   domain.SignalBuy,
			Quantity: 4,
			Price:    68000,
		}, nil
	}

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderSkipped, result.Status)

	logs, err := f.tradeLog.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	position, err := f.positions.Get(domain.MarketKR, "005930")
	require.NoError(t, err)
	assert.Nil(t, position)

	// The notifier still hears about dry-run outcomes.
	require.Len(t, f.notifier.all(), 1)
}

func TestBrokerErrorClassified(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	f.client.smartBuyFn = func(string) (domain.OrderResult, error) {
		return domain.OrderResult{}, domain.NewError(domain.ErrBrokerRejected, "APBK0013: insufficient cash")
	}

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderFailed, result.Status)
	assert.Equal(t, string(domain.ErrBrokerRejected), result.Reason)

	logs, err := f.tradeLog.Recent(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].Message, "APBK0013")
}

func TestSellClosesPositionAndRecordsHistory(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	require.NoError(t, f.positions.Create(domain.Position{
		Market:   domain.MarketKR,
		Ticker:   "005930",
		BuyPrice: 60000,
		BuyDate:  time.Now().UTC().Add(-72 * time.Hour),
	}))
	f.client.smartSellFn = func(ticker string) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:      domain.OrderSuccess,
			Market:      domain.MarketKR,
			Ticker:      ticker,
			Action:      domain.SignalSell,
			Quantity:    4,
			Price:       66000,
			TotalAmount: 264000,
		}, nil
	}

	result := f.coordinator.Submit(context.Background(), sellSignal("005930"))
	require.Equal(t, domain.OrderSuccess, result.Status)

	position, err := f.positions.Get(domain.MarketKR, "005930")
	require.NoError(t, err)
	assert.Nil(t, position, "position should be closed")

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 60000.0, records[0].BuyPrice)
	assert.Equal(t, 66000.0, records[0].SellPrice)
	assert.Equal(t, 3, records[0].HoldingDays)
	assert.InDelta(t, 0.1, records[0].ProfitRate, 0.0001)
}

func TestSellUntrackedTickerLeavesLedgerUnchanged(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	f.client.smartSellFn = func(ticker string) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:   domain.OrderSuccess,
			Market:   domain.MarketKR,
			Ticker:   ticker,
			Action:   domain.SignalSell,
			Quantity: 2,
			Price:    50000,
		}, nil
	}

	result := f.coordinator.Submit(context.Background(), sellSignal("000660"))
	require.Equal(t, domain.OrderSuccess, result.Status)

	records, err := f.history.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records, "no round trip without a tracked entry")

	// The attempt itself is still logged.
	logs, err := f.tradeLog.Recent(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestEventSignalNeverOrders(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)

	result := f.coordinator.Submit(context.Background(), domain.Signal{
		Ticker: "005930",
		Market: domain.MarketKR,
		Type:   domain.SignalEvent,
	})

	assert.Equal(t, domain.OrderSkipped, result.Status)
	assert.Zero(t, f.client.calls())
}

func TestUnknownMarketFails(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)

	result := f.coordinator.Submit(context.Background(), domain.Signal{
		Ticker: "AAPL",
		Market: domain.MarketUS, // no US client registered in the fixture
		Type:   domain.SignalBuy,
	})

	assert.Equal(t, domain.OrderFailed, result.Status)
	assert.Equal(t, string(domain.ErrSchema), result.Reason)
}

func TestShutdownRefusesNewSubmissions(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.coordinator.Shutdown(ctx))

	result := f.coordinator.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderFailed, result.Status)
	assert.Equal(t, domain.SkipShutdown, result.Reason)
	assert.Zero(t, f.client.calls())
}

func TestHungBrokerCallFailsAsTimeout(t *testing.T) {
	ledgerDB, _ := testhelper.NewTestDB(t, "ledger")
	portfolioDB, _ := testhelper.NewTestDB(t, "portfolio")

	log := zerolog.Nop()
	positions := portfolio.NewPositionRepository(portfolioDB.Conn(), log)
	history := portfolio.NewHistoryRepository(ledgerDB.Conn(), log)
	tradeLog := trading.NewTradeLogRepository(ledgerDB.Conn(), log)

	client := &fakeClient{market: domain.MarketKR}
	client.smartBuyCtxFn = func(ctx context.Context, _ string) (domain.OrderResult, error) {
		<-ctx.Done()
		return domain.OrderResult{}, ctx.Err()
	}
	notifier := &resultRecorder{}

	c := New(
		map[domain.Market]domain.BrokerClient{domain.MarketKR: client},
		portfolio.NewService(positions, history, log),
		portfolio.NewAdmissionService(positions, portfolio.AdmissionConfig{
			MaxPositions:        10,
			MaxPositionsSector:  2,
			SectorConcentration: 0.5,
		}, log),
		tradeLog,
		notifier,
		Config{
			Mode:              domain.ModeDemo,
			GlobalConcurrency: 3,
			OperationTimeout:  50 * time.Millisecond,
			UnitAmountKRW:     decimal.NewFromInt(300000),
			UnitAmountUSD:     decimal.NewFromInt(200),
		},
		log,
	)

	result := c.Submit(context.Background(), buySignal("005930"))

	assert.Equal(t, domain.OrderFailed, result.Status)
	assert.Equal(t, string(domain.ErrTimeout), result.Reason)

	logs, err := tradeLog.Recent(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestSubmitAsyncDeliversResult(t *testing.T) {
	f := newFixture(t, domain.ModeDemo)
	f.client.smartBuyFn = func(ticker string) (domain.OrderResult, error) {
		return domain.OrderResult{
			Status:   domain.OrderSuccess,
			Market:   domain.MarketKR,
			Ticker:   ticker,
			Action:   domain.SignalBuy,
			Quantity: 1,
			Price:    68000,
		}, nil
	}

	f.coordinator.SubmitAsync(buySignal("005930"))

	require.Eventually(t, func() bool {
		return len(f.notifier.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	position, err := f.positions.Get(domain.MarketKR, "005930")
	require.NoError(t, err)
	assert.NotNil(t, position)
}
