// Package coordinator serializes order execution: one attempt per ticker at
// a time, a bounded number of attempts globally, and a hard deadline per
// attempt. Every submission resolves to exactly one OrderResult and, outside
// dry-run, exactly one trade-log row.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/modules/portfolio"
	"github.com/jaylee/stocklab-trader/internal/modules/trading"
)

// lockShards bounds the per-ticker lock table; tickers hash onto a fixed
// set of mutexes instead of growing a map forever.
const lockShards = 64

// Notifier receives the outcome of every attempt. The notify package
// implements it; tests use a recorder.
type Notifier interface {
	NotifyResult(result domain.OrderResult)
}

// NopNotifier discards results.
type NopNotifier struct{}

func (NopNotifier) NotifyResult(domain.OrderResult) {}

// Config carries the execution policy.
type Config struct {
	Mode domain.TradeMode
	// GlobalConcurrency bounds simultaneous attempts across all tickers.
	GlobalConcurrency int64
	// OperationTimeout is the hard deadline for one attempt.
	OperationTimeout time.Duration
	// UnitAmountKRW / UnitAmountUSD are the per-order budgets.
	UnitAmountKRW decimal.Decimal
	UnitAmountUSD decimal.Decimal
	// PrePace separates the price read from the order call on the direct
	// (real-mode) path; the smart client variants pace internally.
	PrePace time.Duration
}

// Coordinator routes signals to the right broker client under the
// concurrency discipline and applies outcomes to the ledger.
type Coordinator struct {
	clients   map[domain.Market]domain.BrokerClient
	ledger    *portfolio.Service
	admission *portfolio.AdmissionService
	tradeLog  *trading.TradeLogRepository
	notifier  Notifier
	cfg       Config
	log       zerolog.Logger

	shards   [lockShards]sync.Mutex
	sem      *semaphore.Weighted
	serialMu sync.Mutex

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// New creates a coordinator. A nil notifier is replaced with a no-op.
func New(
	clients map[domain.Market]domain.BrokerClient,
	ledger *portfolio.Service,
	admission *portfolio.AdmissionService,
	tradeLog *trading.TradeLogRepository,
	notifier Notifier,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = 3
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}

	return &Coordinator{
		clients:   clients,
		ledger:    ledger,
		admission: admission,
		tradeLog:  tradeLog,
		notifier:  notifier,
		cfg:       cfg,
		log:       log.With().Str("component", "coordinator").Logger(),
		sem:       semaphore.NewWeighted(cfg.GlobalConcurrency),
	}
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % lockShards
}

func (c *Coordinator) budgetFor(market domain.Market) decimal.Decimal {
	if market == domain.MarketUS {
		return c.cfg.UnitAmountUSD
	}
	return c.cfg.UnitAmountKRW
}

// Submit executes one signal synchronously and returns its result. The
// result is always populated; the error return only reports delivery
// problems after the outcome was already decided (ledger write failures).
func (c *Coordinator) Submit(ctx context.Context, signal domain.Signal) domain.OrderResult {
	attemptID := uuid.NewString()

	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return c.finish(signal, failedResult(signal, attemptID, domain.SkipShutdown, "coordinator is draining"))
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return c.finish(signal, failedResult(signal, attemptID, string(domain.ErrTimeout), "canceled waiting for execution slot"))
	}
	defer c.sem.Release(1)

	shard := &c.shards[shardFor(signal.Key())]
	shard.Lock()
	defer shard.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	result := c.execute(opCtx, attemptID, signal)
	return c.finish(signal, result)
}

// SubmitAsync hands the signal off to a goroutine. The dispatcher uses this
// so bus acknowledgment does not wait on broker latency; results reach the
// ledger and notifier the same way as synchronous submissions.
func (c *Coordinator) SubmitAsync(signal domain.Signal) {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		c.log.Warn().Str("ticker", signal.Ticker).Msg("Submit refused, coordinator is draining")
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		// The attempt carries its own timeout; the parent context only
		// matters for process shutdown, which waits via the WaitGroup.
		c.submitTracked(context.Background(), signal)
	}()
}

// submitTracked is Submit without the intake bookkeeping, for calls that
// already registered with the WaitGroup.
func (c *Coordinator) submitTracked(ctx context.Context, signal domain.Signal) domain.OrderResult {
	attemptID := uuid.NewString()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return c.finish(signal, failedResult(signal, attemptID, string(domain.ErrTimeout), "canceled waiting for execution slot"))
	}
	defer c.sem.Release(1)

	shard := &c.shards[shardFor(signal.Key())]
	shard.Lock()
	defer shard.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	return c.finish(signal, c.execute(opCtx, attemptID, signal))
}

// execute runs the mode- and action-specific path and produces the raw
// result. The coarse serializer covers the whole read-size-submit span so
// concurrent attempts cannot interleave between quote and order.
func (c *Coordinator) execute(ctx context.Context, attemptID string, signal domain.Signal) domain.OrderResult {
	client, ok := c.clients[signal.Market]
	if !ok {
		return failedResult(signal, attemptID, string(domain.ErrSchema), fmt.Sprintf("no client for market %s", signal.Market))
	}

	switch signal.Type {
	case domain.SignalBuy:
		return c.executeBuy(ctx, attemptID, signal, client)
	case domain.SignalSell:
		return c.executeSell(ctx, attemptID, signal, client)
	default:
		// EVENT signals are handled by the dispatcher and never ordered.
		return skippedResult(signal, attemptID, "event signals are not orderable")
	}
}

func (c *Coordinator) executeBuy(ctx context.Context, attemptID string, signal domain.Signal, client domain.BrokerClient) domain.OrderResult {
	if c.cfg.Mode != domain.ModeDryRun {
		decision, err := c.admission.Check(signal.Market, signal.Ticker, signal.Sector)
		if err != nil {
			return failedResult(signal, attemptID, string(domain.ErrStorage), err.Error())
		}
		if !decision.Admit {
			return skippedResult(signal, attemptID, decision.Reason)
		}
	}

	budget := c.budgetFor(signal.Market)

	c.serialMu.Lock()
	defer c.serialMu.Unlock()

	var result domain.OrderResult
	var err error

	switch c.cfg.Mode {
	case domain.ModeReal:
		result, err = c.directBuy(ctx, signal, client, budget)
	default:
		// Demo and dry-run take the calendar-gated smart path.
		result, err = client.SmartBuy(ctx, signal.Ticker, budget)
	}
	if err != nil {
		return errorResult(signal, attemptID, err)
	}

	result.AttemptID = attemptID
	return result
}

// directBuy is the real-mode path: size against the live quote, pace, then
// submit at market even when the session is closed (the venue queues the
// order for the open).
func (c *Coordinator) directBuy(ctx context.Context, signal domain.Signal, client domain.BrokerClient, budget decimal.Decimal) (domain.OrderResult, error) {
	quantity, quote, err := client.BuyQuantity(ctx, signal.Ticker, budget)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if quantity == 0 {
		return domain.OrderResult{
			Status: domain.OrderSkipped,
			Reason: domain.SkipInsufficientBudget,
			Market: signal.Market,
			Ticker: signal.Ticker,
			Action: domain.SignalBuy,
		}, nil
	}

	if err := sleepCtx(ctx, c.cfg.PrePace); err != nil {
		return domain.OrderResult{}, domain.WrapError(domain.ErrTimeout, err, "canceled before order submission")
	}

	result, err := client.BuyMarket(ctx, signal.Ticker, quantity)
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

func (c *Coordinator) executeSell(ctx context.Context, attemptID string, signal domain.Signal, client domain.BrokerClient) domain.OrderResult {
	c.serialMu.Lock()
	defer c.serialMu.Unlock()

	var result domain.OrderResult
	var err error

	switch c.cfg.Mode {
	case domain.ModeReal:
		result, err = client.SellAllMarket(ctx, signal.Ticker)
	default:
		result, err = client.SmartSellAll(ctx, signal.Ticker)
	}
	if err != nil {
		return errorResult(signal, attemptID, err)
	}

	result.AttemptID = attemptID
	return result
}

// finish applies the result to the ledger, appends the trade-log row and
// notifies. Dry-run results bypass persistence entirely.
func (c *Coordinator) finish(signal domain.Signal, result domain.OrderResult) domain.OrderResult {
	logEvent := c.log.Info()
	if result.Status == domain.OrderFailed {
		logEvent = c.log.Error()
	}
	logEvent.
		Str("attempt_id", result.AttemptID).
		Str("market", string(result.Market)).
		Str("ticker", result.Ticker).
		Str("action", string(result.Action)).
		Str("status", string(result.Status)).
		Str("reason", result.Reason).
		Int64("quantity", result.Quantity).
		Float64("price", result.Price).
		Msg("Order attempt finished")

	if c.cfg.Mode == domain.ModeDryRun {
		c.notifier.NotifyResult(result)
		return result
	}

	if result.Status == domain.OrderSuccess {
		var err error
		switch result.Action {
		case domain.SignalBuy:
			err = c.ledger.RecordBuy(signal, result)
		case domain.SignalSell:
			err = c.ledger.RecordSell(result)
		}
		if err != nil {
			c.log.Error().Err(err).
				Str("ticker", result.Ticker).
				Msg("Failed to apply order result to ledger")
		}
	}

	entry := domain.TradeLog{
		AttemptID:   result.AttemptID,
		Market:      result.Market,
		Ticker:      result.Ticker,
		Action:      result.Action,
		Quantity:    result.Quantity,
		Price:       result.Price,
		TotalAmount: result.TotalAmount,
		OrderNo:     result.OrderNo,
		Success:     result.Status == domain.OrderSuccess,
		Message:     logMessage(result),
	}
	if err := c.tradeLog.Append(entry); err != nil {
		c.log.Error().Err(err).
			Str("attempt_id", result.AttemptID).
			Msg("Failed to append trade log")
	}

	c.notifier.NotifyResult(result)
	return result
}

// Shutdown stops intake and waits for in-flight attempts up to the context
// deadline, then abandons them. Subsequent submits fail with a shutdown
// result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("Coordinator drained")
		return nil
	case <-ctx.Done():
		c.log.Warn().Msg("Shutdown deadline reached with attempts still in flight")
		return fmt.Errorf("failed to drain coordinator: %w", ctx.Err())
	}
}

// Result constructors

func failedResult(signal domain.Signal, attemptID, reason, message string) domain.OrderResult {
	return domain.OrderResult{
		Status:    domain.OrderFailed,
		Reason:    reason,
		Market:    signal.Market,
		Ticker:    signal.Ticker,
		Action:    signal.Type,
		Message:   message,
		AttemptID: attemptID,
	}
}

func skippedResult(signal domain.Signal, attemptID, reason string) domain.OrderResult {
	return domain.OrderResult{
		Status:    domain.OrderSkipped,
		Reason:    reason,
		Market:    signal.Market,
		Ticker:    signal.Ticker,
		Action:    signal.Type,
		AttemptID: attemptID,
	}
}

func errorResult(signal domain.Signal, attemptID string, err error) domain.OrderResult {
	kind := domain.KindOf(err)
	// A bare deadline error from a client that did not classify it is still
	// a timeout, not a storage failure.
	if kind == domain.ErrStorage && errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ErrTimeout
	}
	return domain.OrderResult{
		Status:    domain.OrderFailed,
		Reason:    string(kind),
		Market:    signal.Market,
		Ticker:    signal.Ticker,
		Action:    signal.Type,
		Message:   err.Error(),
		AttemptID: attemptID,
	}
}

func logMessage(result domain.OrderResult) string {
	if result.Message != "" {
		return result.Message
	}
	return result.Reason
}

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
