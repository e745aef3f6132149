package kis

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// DryRunClient replaces every broker call with a log line and a fabricated
// result. Used for staging and integration testing; no network, no state.
type DryRunClient struct {
	market domain.Market
	log    zerolog.Logger
}

// Compile-time interface check.
var _ domain.BrokerClient = (*DryRunClient)(nil)

// NewDryRunClient creates a log-only client for the given market.
func NewDryRunClient(market domain.Market, log zerolog.Logger) *DryRunClient {
	return &DryRunClient{
		market: market,
		log:    log.With().Str("component", "kis-dryrun").Str("market", string(market)).Logger(),
	}
}

// Market identifies which market this client pretends to trade.
func (c *DryRunClient) Market() domain.Market {
	return c.market
}

// fabricatedPrice derives a stable per-ticker price so repeated quotes and
// quantity math stay consistent within a session.
func (c *DryRunClient) fabricatedPrice(ticker string) decimal.Decimal {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	if c.market == domain.MarketUS {
		// 20.00 .. 520.00 USD
		return decimal.NewFromInt(int64(h.Sum32()%50000) + 2000).Div(decimal.NewFromInt(100))
	}
	// 10,000 .. 210,000 KRW
	return decimal.NewFromInt(int64(h.Sum32()%200000) + 10000)
}

// CurrentPrice returns a fabricated quote.
func (c *DryRunClient) CurrentPrice(_ context.Context, ticker string) (domain.Quote, error) {
	return domain.Quote{
		Ticker:   ticker,
		Price:    c.fabricatedPrice(ticker),
		Currency: c.market.Currency(),
		AsOf:     time.Now(),
	}, nil
}

// BuyQuantity sizes against the fabricated price.
func (c *DryRunClient) BuyQuantity(ctx context.Context, ticker string, budget decimal.Decimal) (int64, domain.Quote, error) {
	quote, _ := c.CurrentPrice(ctx, ticker)
	return quantityFor(budget, quote.Price), quote, nil
}

func (c *DryRunClient) fabricate(ticker string, action domain.SignalType, quantity int64) domain.OrderResult {
	price, _ := c.fabricatedPrice(ticker).Float64()
	orderNo := "DRY-" + uuid.NewString()[:8]

	c.log.Info().
		Str("ticker", ticker).
		Str("action", string(action)).
		Int64("quantity", quantity).
		Float64("price", price).
		Str("order_no", orderNo).
		Msg("Dry-run order (no broker call)")

	return domain.OrderResult{
		Status:      domain.OrderSuccess,
		Message:     "dry-run",
		Market:      c.market,
		Ticker:      ticker,
		Action:      action,
		Quantity:    quantity,
		Price:       price,
		TotalAmount: price * float64(quantity),
		OrderNo:     orderNo,
	}
}

// BuyMarket logs a fabricated market buy.
func (c *DryRunClient) BuyMarket(_ context.Context, ticker string, quantity int64) (domain.OrderResult, error) {
	return c.fabricate(ticker, domain.SignalBuy, quantity), nil
}

// BuyLimit logs a fabricated limit buy.
func (c *DryRunClient) BuyLimit(_ context.Context, ticker string, quantity int64, _ decimal.Decimal) (domain.OrderResult, error) {
	return c.fabricate(ticker, domain.SignalBuy, quantity), nil
}

// SellAllMarket logs a fabricated full liquidation of one share.
func (c *DryRunClient) SellAllMarket(_ context.Context, ticker string) (domain.OrderResult, error) {
	return c.fabricate(ticker, domain.SignalSell, 1), nil
}

// Holdings reports an empty book.
func (c *DryRunClient) Holdings(_ context.Context) ([]domain.BrokerPosition, error) {
	return nil, nil
}

// AccountSummary reports an empty account.
func (c *DryRunClient) AccountSummary(_ context.Context) (domain.AccountSummary, error) {
	return domain.AccountSummary{Market: c.market, Currency: c.market.Currency()}, nil
}

// SmartBuy sizes against the fabricated price; no calendar gate, dry-run
// trades around the clock.
func (c *DryRunClient) SmartBuy(ctx context.Context, ticker string, budget decimal.Decimal) (domain.OrderResult, error) {
	quantity, _, _ := c.BuyQuantity(ctx, ticker, budget)
	if quantity == 0 {
		return skipped(c.market, ticker, domain.SignalBuy, domain.SkipInsufficientBudget), nil
	}
	return c.BuyMarket(ctx, ticker, quantity)
}

// SmartSellAll logs a fabricated liquidation.
func (c *DryRunClient) SmartSellAll(ctx context.Context, ticker string) (domain.OrderResult, error) {
	return c.SellAllMarket(ctx, ticker)
}
