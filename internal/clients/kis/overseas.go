package kis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jaylee/stocklab-trader/internal/clients/kis/sdk"
	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/retry"
)

// Price endpoint exchange codes, probed in listing-likelihood order, paired
// with the order endpoint venue codes.
var usVenues = []struct {
	excd     string // price endpoint code
	exchange string // order endpoint code
}{
	{"NAS", "NASD"},
	{"NYS", "NYSE"},
	{"AMS", "AMEX"},
}

// OverseasClient trades US equities. The venue (NASDAQ / NYSE / AMEX) is
// inferred per ticker by probing the price endpoint and cached for the
// process lifetime.
type OverseasClient struct {
	sdk      SDK
	calendar MarketCalendar
	opts     Options
	log      zerolog.Logger

	venueMu sync.Mutex
	venues  map[string]string // ticker -> price endpoint code
}

// Compile-time interface check.
var _ domain.BrokerClient = (*OverseasClient)(nil)

// NewOverseasClient creates a US-market client over an SDK connection.
func NewOverseasClient(s SDK, calendar MarketCalendar, opts Options, log zerolog.Logger) *OverseasClient {
	return &OverseasClient{
		sdk:      s,
		calendar: calendar,
		opts:     opts,
		log:      log.With().Str("component", "kis-overseas").Logger(),
		venues:   make(map[string]string),
	}
}

// Market identifies which market this client trades.
func (c *OverseasClient) Market() domain.Market {
	return domain.MarketUS
}

// resolveVenue finds the exchange listing the ticker by probing NAS, NYS and
// AMS in order. The first venue returning a price wins and is cached.
func (c *OverseasClient) resolveVenue(ctx context.Context, ticker string) (string, *sdk.OverseasPriceOutput, error) {
	c.venueMu.Lock()
	cached, ok := c.venues[ticker]
	c.venueMu.Unlock()

	if ok {
		out, err := c.sdk.OverseasPrice(ctx, cached, ticker)
		if err != nil {
			return "", nil, err
		}
		return cached, out, nil
	}

	var lastErr error
	for _, venue := range usVenues {
		out, err := c.sdk.OverseasPrice(ctx, venue.excd, ticker)
		if err != nil {
			lastErr = err
			continue
		}
		if parseDecimal(out.Price).IsZero() {
			// Empty price means the ticker is not listed on this venue.
			continue
		}

		c.venueMu.Lock()
		c.venues[ticker] = venue.excd
		c.venueMu.Unlock()

		c.log.Debug().Str("ticker", ticker).Str("venue", venue.excd).Msg("Venue resolved")
		return venue.excd, out, nil
	}

	if lastErr != nil {
		return "", nil, lastErr
	}
	return "", nil, domain.NewError(domain.ErrPriceUnavailable, "no venue lists "+ticker)
}

// orderExchange maps a price endpoint code to the order endpoint venue code.
func orderExchange(excd string) string {
	for _, venue := range usVenues {
		if venue.excd == excd {
			return venue.exchange
		}
	}
	return "NASD"
}

// CurrentPrice returns the latest US quote for the ticker, probing venues on
// first use.
func (c *OverseasClient) CurrentPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	var excd string
	var out *sdk.OverseasPriceOutput
	err := retry.Do(ctx, priceReadRetry, transientRead, func() error {
		var reqErr error
		excd, out, reqErr = c.resolveVenue(ctx, ticker)
		return reqErr
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrPriceUnavailable) {
			return domain.Quote{}, err
		}
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
		Venue:      excd,
		Currency:   "USD",
		AsOf:       time.Now(),
	}, nil
}

// BuyQuantity computes how many shares the budget affords at the current
// price.
func (c *OverseasClient) BuyQuantity(ctx context.Context, ticker string, budget decimal.Decimal) (int64, domain.Quote, error) {
	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return 0, domain.Quote{}, err
	}
	return quantityFor(budget, quote.Price), quote, nil
}

// BuyMarket submits a buy for the given quantity. The overseas order
// endpoint only takes limit orders, so the submission goes out as a limit at
// the freshly quoted price.
func (c *OverseasClient) BuyMarket(ctx context.Context, ticker string, quantity int64) (domain.OrderResult, error) {
	if !c.opts.AutoTrading {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipAutoTradingOff), nil
	}
	if quantity <= 0 {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipInsufficientBudget), nil
	}

	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return c.order(ctx, sdk.OverseasBuy, domain.SignalBuy, ticker, quantity, quote.Price, quote.Venue)
}

// BuyLimit submits a limit buy order at the given price.
func (c *OverseasClient) BuyLimit(ctx context.Context, ticker string, quantity int64, price decimal.Decimal) (domain.OrderResult, error) {
	if !c.opts.AutoTrading {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipAutoTradingOff), nil
	}
	if quantity <= 0 {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipInsufficientBudget), nil
	}

	excd, _, err := c.resolveVenue(ctx, ticker)
	if err != nil {
		return domain.OrderResult{}, domain.WrapError(domain.ErrPriceUnavailable, err, "failed to resolve venue for "+ticker)
	}
	return c.order(ctx, sdk.OverseasBuy, domain.SignalBuy, ticker, quantity, price, excd)
}

// SellAllMarket liquidates the full held quantity of the ticker. Holding
// nothing is a skip, not an error.
func (c *OverseasClient) SellAllMarket(ctx context.Context, ticker string) (domain.OrderResult, error) {
	if !c.opts.AutoTrading {
		return skipped(domain.MarketUS, ticker, domain.SignalSell, domain.SkipAutoTradingOff), nil
	}

	rows, _, err := c.sdk.OverseasBalance(ctx)
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
		return skipped(domain.MarketUS, ticker, domain.SignalSell, domain.SkipNoHoldings), nil
	}

	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return c.order(ctx, sdk.OverseasSell, domain.SignalSell, ticker, quantity, quote.Price, quote.Venue)
}

func (c *OverseasClient) order(ctx context.Context, side sdk.OverseasOrderSide, action domain.SignalType, ticker string, quantity int64, price decimal.Decimal, excd string) (domain.OrderResult, error) {
	out, err := c.sdk.OverseasOrder(ctx, side, orderExchange(excd), ticker, quantity, price.StringFixed(2))
	if err != nil {
		return domain.OrderResult{}, classifyBrokerErr(err, "order rejected for "+ticker)
	}

	fillPrice, _ := price.Float64()
	result := domain.OrderResult{
		Status:      domain.OrderSuccess,
		Market:      domain.MarketUS,
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
		Str("venue", excd).
		Str("order_no", out.OrderNo).
		Msg("Order placed")

	_ = sleepCtx(ctx, c.opts.Settle)
	return result, nil
}

// Holdings returns current US positions as the brokerage sees them.
func (c *OverseasClient) Holdings(ctx context.Context) ([]domain.BrokerPosition, error) {
	rows, _, err := c.sdk.OverseasBalance(ctx)
	if err != nil {
		return nil, classifyBrokerErr(err, "failed to query holdings")
	}

	positions := make([]domain.BrokerPosition, 0, len(rows))
	for _, row := range rows {
		quantity := parseDecimal(row.Quantity).IntPart()
		if quantity <= 0 {
			continue
		}
		currency := row.Currency
		if currency == "" {
			currency = "USD"
		}
		positions = append(positions, domain.BrokerPosition{
			Ticker:       row.Ticker,
			CompanyName:  row.Name,
			Quantity:     quantity,
			AvgPrice:     parseDecimal(row.AvgPrice),
			CurrentPrice: parseDecimal(row.CurrentPrice),
			EvalAmount:   parseDecimal(row.EvalAmount),
			ProfitRate:   parseDecimal(row.ProfitRate),
			Currency:     currency,
		})
	}
	return positions, nil
}

// AccountSummary returns cash and valuation for the overseas account.
func (c *OverseasClient) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	rows, summary, err := c.sdk.OverseasBalance(ctx)
	if err != nil {
		return domain.AccountSummary{}, classifyBrokerErr(err, "failed to query account summary")
	}

	out := domain.AccountSummary{
		Market:   domain.MarketUS,
		Currency: "USD",
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
// and submits.
func (c *OverseasClient) SmartBuy(ctx context.Context, ticker string, budget decimal.Decimal) (domain.OrderResult, error) {
	if !c.calendar.IsOpen(domain.MarketUS, time.Now()) {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipMarketClosed), nil
	}
	if !c.opts.AutoTrading {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipAutoTradingOff), nil
	}

	quantity, quote, err := c.BuyQuantity(ctx, ticker, budget)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if quantity == 0 {
		return skipped(domain.MarketUS, ticker, domain.SignalBuy, domain.SkipInsufficientBudget), nil
	}

	if err := sleepCtx(ctx, c.opts.PrePace); err != nil {
		return domain.OrderResult{}, domain.WrapError(domain.ErrTimeout, err, "canceled before order submission")
	}

	return c.order(ctx, sdk.OverseasBuy, domain.SignalBuy, ticker, quantity, quote.Price, quote.Venue)
}

// SmartSellAll gates on the calendar and liquidates the full position.
func (c *OverseasClient) SmartSellAll(ctx context.Context, ticker string) (domain.OrderResult, error) {
	if !c.calendar.IsOpen(domain.MarketUS, time.Now()) {
		return skipped(domain.MarketUS, ticker, domain.SignalSell, domain.SkipMarketClosed), nil
	}
	return c.SellAllMarket(ctx, ticker)
}
