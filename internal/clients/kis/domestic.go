package kis

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/clients/kis/sdk"
	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/retry"
)

// DomesticClient trades KRX equities. Quantities are whole shares, prices in
// KRW.
type DomesticClient struct {
	sdk      SDK
	calendar MarketCalendar
	opts     Options
	log      zerolog.Logger
}

// Compile-time interface check.
var _ domain.BrokerClient = (*DomesticClient)(nil)

// NewDomesticClient creates a KRX client over an SDK connection.
func NewDomesticClient(s SDK, calendar MarketCalendar, opts Options, log zerolog.Logger) *DomesticClient {
	return &DomesticClient{
		sdk:      s,
		calendar: calendar,
		opts:     opts,
		log:      log.With().Str("component", "kis-domestic").Logger(),
	}
}

// Market identifies which market this client trades.
func (c *DomesticClient) Market() domain.Market {
	return domain.MarketKR
}

// CurrentPrice returns the latest KRX quote for the ticker.
func (c *DomesticClient) CurrentPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	var out *sdk.DomesticPriceOutput
	err := retry.Do(ctx, priceReadRetry, transientRead, func() error {
		var reqErr error
		out, reqErr = c.sdk.DomesticPrice(ctx, ticker)
		return reqErr
	})
	if err != nil {
		return domain.Quote{}, domain.WrapError(domain.ErrPriceUnavailable, err, "failed to quote "+ticker)
	}

	price := parseDecimal(out.Price)
	if price.IsZero() {
		return domain.Quote{}, domain.NewError(domain.ErrPriceUnavailable, "venue returned no price for "+ticker)
	}

	return domain.Quote{
		Ticker:     ticker,
		Price:      price,
		PrevClose:  parseDecimal(out.PrevClose),
		ChangeRate: parseDecimal(out.ChangeRate),
		Currency:   "KRW",
		AsOf:       time.Now(),
	}, nil
}

// BuyQuantity computes how many shares the budget affords at the current
// price.
func (c *DomesticClient) BuyQuantity(ctx context.Context, ticker string, budget decimal.Decimal) (int64, domain.Quote, error) {
	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return 0, domain.Quote{}, err
	}
	return quantityFor(budget, quote.Price), quote, nil
}

// BuyMarket submits a market buy order for the given quantity.
func (c *DomesticClient) BuyMarket(ctx context.Context, ticker string, quantity int64) (domain.OrderResult, error) {
	return c.order(ctx, sdk.DomesticBuy, domain.SignalBuy, ticker, "01", quantity, decimal.Zero)
}

// BuyLimit submits a limit buy order at the given price.
func (c *DomesticClient) BuyLimit(ctx context.Context, ticker string, quantity int64, price decimal.Decimal) (domain.OrderResult, error) {
	return c.order(ctx, sdk.DomesticBuy, domain.SignalBuy, ticker, "00", quantity, price)
}

// SellAllMarket liquidates the full held quantity of the ticker at market.
// Holding nothing is a skip, not an error.
func (c *DomesticClient) SellAllMarket(ctx context.Context, ticker string) (domain.OrderResult, error) {
	if !c.opts.AutoTrading {
		return skipped(domain.MarketKR, ticker, domain.SignalSell, domain.SkipAutoTradingOff), nil
	}

	rows, _, err := c.sdk.DomesticBalance(ctx)
	if err != nil {
		return domain.OrderResult{}, classifyBrokerErr(err, "failed to query holdings")
	}

	var quantity int64
	for _, row := range rows {
		if row.Ticker == ticker {
			quantity = parseDecimal(row.Quantity).IntPart()
			break
		}
	}
	if quantity <= 0 {
		return skipped(domain.MarketKR, ticker, domain.SignalSell, domain.SkipNoHoldings), nil
	}

	// The order goes out at market (price 0 on the wire); quote first so the
	// result carries a fill price for the ledger.
	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return domain.OrderResult{}, err
	}

	result, err := c.order(ctx, sdk.DomesticSell, domain.SignalSell, ticker, "01", quantity, decimal.Zero)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if result.Status == domain.OrderSuccess {
		price, _ := quote.Price.Float64()
		result.Price = price
		result.TotalAmount = price * float64(quantity)
	}
	return result, nil
}

func (c *DomesticClient) order(ctx context.Context, side sdk.DomesticOrderSide, action domain.SignalType, ticker, ordDvsn string, quantity int64, price decimal.Decimal) (domain.OrderResult, error) {
	if !c.opts.AutoTrading {
		return skipped(domain.MarketKR, ticker, action, domain.SkipAutoTradingOff), nil
	}
	if quantity <= 0 {
		return skipped(domain.MarketKR, ticker, action, domain.SkipInsufficientBudget), nil
	}

	out, err := c.sdk.DomesticOrder(ctx, side, ticker, ordDvsn, quantity, price.String())
	if err != nil {
		return domain.OrderResult{}, classifyBrokerErr(err, "order rejected for "+ticker)
	}

	fillPrice, _ := price.Float64()
	result := domain.OrderResult{
		Status:      domain.OrderSuccess,
		Market:      domain.MarketKR,
		Ticker:      ticker,
		Action:      action,
		Quantity:    quantity,
		Price:       fillPrice,
		TotalAmount: fillPrice * float64(quantity),
		OrderNo:     out.OrderNo,
	}

	c.log.Info().
		Str("ticker", ticker).
		Str("action", string(action)).
		Int64("quantity", quantity).
		Str("order_no", out.OrderNo).
		Msg("Order placed")

	if err := sleepCtx(ctx, c.opts.Settle); err != nil {
		return result, nil
	}
	return result, nil
}

// Holdings returns current positions as the brokerage sees them.
func (c *DomesticClient) Holdings(ctx context.Context) ([]domain.BrokerPosition, error) {
	rows, _, err := c.sdk.DomesticBalance(ctx)
	if err != nil {
		return nil, classifyBrokerErr(err, "failed to query holdings")
	}

	positions := make([]domain.BrokerPosition, 0, len(rows))
	for _, row := range rows {
		quantity := parseDecimal(row.Quantity).IntPart()
		if quantity <= 0 {
			continue
		}
		positions = append(positions, domain.BrokerPosition{
			Ticker:       row.Ticker,
			CompanyName:  row.Name,
			Quantity:     quantity,
			AvgPrice:     parseDecimal(row.AvgPrice),
			CurrentPrice: parseDecimal(row.CurrentPrice),
			EvalAmount:   parseDecimal(row.EvalAmount),
			ProfitRate:   parseDecimal(row.ProfitRate),
			Currency:     "KRW",
		})
	}
	return positions, nil
}

// AccountSummary returns cash and valuation for the domestic account.
func (c *DomesticClient) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	rows, summary, err := c.sdk.DomesticBalance(ctx)
	if err != nil {
		return domain.AccountSummary{}, classifyBrokerErr(err, "failed to query account summary")
	}

	out := domain.AccountSummary{
		Market:   domain.MarketKR,
		Currency: "KRW",
	}
	if summary != nil {
		out.Cash = parseDecimal(summary.Cash)
		out.TotalEval = parseDecimal(summary.TotalEval)
		out.TotalProfit = parseDecimal(summary.TotalProfit)
	}
	for _, row := range rows {
		if parseDecimal(row.Quantity).IntPart() > 0 {
			out.PositionsCount++
		}
	}
	return out, nil
}

// SmartBuy gates on the calendar, sizes the order from the budget, paces,
// and submits a market buy.
func (c *DomesticClient) SmartBuy(ctx context.Context, ticker string, budget decimal.Decimal) (domain.OrderResult, error) {
	if !c.calendar.IsOpen(domain.MarketKR, time.Now()) {
		return skipped(domain.MarketKR, ticker, domain.SignalBuy, domain.SkipMarketClosed), nil
	}

	quantity, quote, err := c.BuyQuantity(ctx, ticker, budget)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if quantity == 0 {
		return skipped(domain.MarketKR, ticker, domain.SignalBuy, domain.SkipInsufficientBudget), nil
	}

	if err := sleepCtx(ctx, c.opts.PrePace); err != nil {
		return domain.OrderResult{}, domain.WrapError(domain.ErrTimeout, err, "canceled before order submission")
	}

	result, err := c.BuyMarket(ctx, ticker, quantity)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if result.Status == domain.OrderSuccess {
		price, _ := quote.Price.Float64()
		result.Price = price
		result.TotalAmount = price * float64(quantity)
	}
	return result, nil
}

// SmartSellAll gates on the calendar and liquidates the full position.
func (c *DomesticClient) SmartSellAll(ctx context.Context, ticker string) (domain.OrderResult, error) {
	if !c.calendar.IsOpen(domain.MarketKR, time.Now()) {
		return skipped(domain.MarketKR, ticker, domain.SignalSell, domain.SkipMarketClosed), nil
	}
	return c.SellAllMarket(ctx, ticker)
}
