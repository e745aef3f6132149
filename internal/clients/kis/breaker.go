package kis

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// BreakerClient decorates a BrokerClient with a circuit breaker so a broken
// brokerage connection fails fast instead of queueing slow timeouts. Skips
// count as successes; only genuine wire failures trip the breaker.
type BreakerClient struct {
	inner domain.BrokerClient
	cb    *gobreaker.CircuitBreaker
	log   zerolog.Logger
}

// Compile-time interface check.
var _ domain.BrokerClient = (*BreakerClient)(nil)

// NewBreakerClient wraps a client with a breaker that opens after 60% of
// calls fail across at least 3 requests in a rolling 60s window, then probes
// again after 30s.
func NewBreakerClient(inner domain.BrokerClient, log zerolog.Logger) *BreakerClient {
	componentLog := log.With().
		Str("component", "kis-breaker").
		Str("market", string(inner.Market())).
		Logger()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "kis-" + string(inner.Market()),
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLog.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &BreakerClient{inner: inner, cb: cb, log: componentLog}
}

// execute runs fn through the breaker, mapping a rejected call (breaker open
// or half-open quota exhausted) onto the broker error taxonomy.
func (c *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := c.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, domain.WrapError(domain.ErrBrokerRejected, err, "brokerage connection unavailable")
	}
	return out, err
}

// Market identifies which market the wrapped client trades.
func (c *BreakerClient) Market() domain.Market {
	return c.inner.Market()
}

func (c *BreakerClient) CurrentPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	out, err := c.execute(func() (interface{}, error) {
		quote, innerErr := c.inner.CurrentPrice(ctx, ticker)
		return quote, innerErr
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return out.(domain.Quote), nil
}

func (c *BreakerClient) BuyQuantity(ctx context.Context, ticker string, budget decimal.Decimal) (int64, domain.Quote, error) {
	type sized struct {
		quantity int64
		quote    domain.Quote
	}
	out, err := c.execute(func() (interface{}, error) {
		quantity, quote, innerErr := c.inner.BuyQuantity(ctx, ticker, budget)
		if innerErr != nil {
			return nil, innerErr
		}
		return sized{quantity: quantity, quote: quote}, nil
	})
	if err != nil {
		return 0, domain.Quote{}, err
	}
	s := out.(sized)
	return s.quantity, s.quote, nil
}

func (c *BreakerClient) orderThrough(fn func() (domain.OrderResult, error)) (domain.OrderResult, error) {
	out, err := c.execute(func() (interface{}, error) {
		result, innerErr := fn()
		return result, innerErr
	})
	if err != nil {
		return domain.OrderResult{}, err
	}
	return out.(domain.OrderResult), nil
}

func (c *BreakerClient) BuyMarket(ctx context.Context, ticker string, quantity int64) (domain.OrderResult, error) {
	return c.orderThrough(func() (domain.OrderResult, error) {
		return c.inner.BuyMarket(ctx, ticker, quantity)
	})
}

func (c *BreakerClient) BuyLimit(ctx context.Context, ticker string, quantity int64, price decimal.Decimal) (domain.OrderResult, error) {
	return c.orderThrough(func() (domain.OrderResult, error) {
		return c.inner.BuyLimit(ctx, ticker, quantity, price)
	})
}

func (c *BreakerClient) SellAllMarket(ctx context.Context, ticker string) (domain.OrderResult, error) {
	return c.orderThrough(func() (domain.OrderResult, error) {
		return c.inner.SellAllMarket(ctx, ticker)
	})
}

func (c *BreakerClient) Holdings(ctx context.Context) ([]domain.BrokerPosition, error) {
	out, err := c.execute(func() (interface{}, error) {
		positions, innerErr := c.inner.Holdings(ctx)
		return positions, innerErr
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.BrokerPosition), nil
}

func (c *BreakerClient) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	out, err := c.execute(func() (interface{}, error) {
		summary, innerErr := c.inner.AccountSummary(ctx)
		return summary, innerErr
	})
	if err != nil {
		return domain.AccountSummary{}, err
	}
	return out.(domain.AccountSummary), nil
}

func (c *BreakerClient) SmartBuy(ctx context.Context, ticker string, budget decimal.Decimal) (domain.OrderResult, error) {
	return c.orderThrough(func() (domain.OrderResult, error) {
		return c.inner.SmartBuy(ctx, ticker, budget)
	})
}

func (c *BreakerClient) SmartSellAll(ctx context.Context, ticker string) (domain.OrderResult, error) {
	return c.orderThrough(func() (domain.OrderResult, error) {
		return c.inner.SmartSellAll(ctx, ticker)
	})
}
