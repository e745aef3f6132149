package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/events"
)

// memoryStore is an in-memory OrderStore with the same terminal-transition
// guard as the SQLite repository.
type memoryStore struct {
	mu       sync.Mutex
	orders   map[int64]*domain.ScheduledOrder
	takeErr  error
	executed []int64
	failed   map[int64]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders: make(map[int64]*domain.ScheduledOrder),
		failed: make(map[int64]string),
	}
}

func (m *memoryStore) add(order domain.ScheduledOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := order
	o.Status = domain.ScheduledPending
	m.orders[o.ID] = &o
}

func (m *memoryStore) TakeReady(now time.Time) ([]domain.ScheduledOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takeErr != nil {
		return nil, m.takeErr
	}
	var ready []domain.ScheduledOrder
	for _, o := range m.orders {
		if o.Status == domain.ScheduledPending && !o.ExecuteAfter.After(now) {
			ready = append(ready, *o)
		}
	}
	return ready, nil
}

func (m *memoryStore) MarkExecuted(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == domain.ScheduledPending {
		o.Status = domain.ScheduledExecuted
		m.executed = append(m.executed, id)
	}
	return nil
}

func (m *memoryStore) MarkFailed(id int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == domain.ScheduledPending {
		o.Status = domain.ScheduledFailed
		m.failed[id] = message
	}
	return nil
}

func (m *memoryStore) statusOf(id int64) domain.ScheduledStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

// scriptedSubmitter returns a canned result per ticker and records signals.
type scriptedSubmitter struct {
	mu      sync.Mutex
	results map[string]domain.OrderResult
	seen    []domain.Signal
}

func (s *scriptedSubmitter) Submit(_ context.Context, signal domain.Signal) domain.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, signal)
	if r, ok := s.results[signal.Ticker]; ok {
		return r
	}
	return domain.OrderResult{
		Status: domain.OrderSuccess,
		Market: signal.Market,
		Ticker: signal.Ticker,
		Action: signal.Type,
	}
}

func (s *scriptedSubmitter) signals() []domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Signal(nil), s.seen...)
}

func newReplay(store OrderStore, submit Submitter) *ReplayScheduler {
	return NewReplay(store, submit, events.NewEmitter(zerolog.Nop()), time.Minute, zerolog.Nop())
}

func pastOrder(id int64, ticker string, market domain.Market) domain.ScheduledOrder {
	return domain.ScheduledOrder{
		ID:           id,
		Ticker:       ticker,
		Market:       market,
		SignalType:   domain.SignalBuy,
		ExecuteAfter: time.Now().Add(-time.Minute),
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

func TestRunOnceMarksOutcomes(t *testing.T) {
	store := newMemoryStore()
	store.add(pastOrder(1, "005930", domain.MarketKR))
	store.add(pastOrder(2, "000660", domain.MarketKR))

	submit := &scriptedSubmitter{results: map[string]domain.OrderResult{
		"000660": {
			Status:  domain.OrderFailed,
			Reason:  string(domain.ErrTimeout),
			Message: "timeout",
			Ticker:  "000660",
			Market:  domain.MarketKR,
			Action:  domain.SignalBuy,
		},
	}}

	s := newReplay(store, submit)
	s.runOnce()

	assert.Equal(t, domain.ScheduledExecuted, store.statusOf(1))
	assert.Equal(t, domain.ScheduledFailed, store.statusOf(2))
	assert.Equal(t, "timeout", store.failed[2])
	assert.Len(t, submit.signals(), 2)
}

func TestSkippedResultFinalizesExecuted(t *testing.T) {
	store := newMemoryStore()
	store.add(pastOrder(7, "005930", domain.MarketKR))

	submit := &scriptedSubmitter{results: map[string]domain.OrderResult{
		"005930": {
			Status: domain.OrderSkipped,
			Reason: domain.SkipAlreadyHolding,
			Ticker: "005930",
			Market: domain.MarketKR,
			Action: domain.SignalBuy,
		},
	}}

	s := newReplay(store, submit)
	s.runOnce()

	assert.Equal(t, domain.ScheduledExecuted, store.statusOf(7))
}

func TestMarketClosedSkipStaysPending(t *testing.T) {
	store := newMemoryStore()
	store.add(pastOrder(3, "AAPL", domain.MarketUS))

	submit := &scriptedSubmitter{results: map[string]domain.OrderResult{
		"AAPL": {
			Status: domain.OrderSkipped,
			Reason: domain.SkipMarketClosed,
			Ticker: "AAPL",
			Market: domain.MarketUS,
			Action: domain.SignalBuy,
		},
	}}

	s := newReplay(store, submit)
	s.runOnce()

	assert.Equal(t, domain.ScheduledPending, store.statusOf(3))
}

func TestReplayPrefersStoredPayload(t *testing.T) {
	store := newMemoryStore()
	order := pastOrder(4, "AAPL", domain.MarketUS)
	order.SignalPayload = []byte(`{"ticker":"AAPL","signal_type":"BUY","market":"US","sector":"Technology","price":185.42}`)
	store.add(order)

	submit := &scriptedSubmitter{}
	s := newReplay(store, submit)
	s.runOnce()

	signals := submit.signals()
	require.Len(t, signals, 1)
	assert.Equal(t, "Technology", signals[0].Sector)
	require.NotNil(t, signals[0].Price)
	assert.Equal(t, "185.42", signals[0].Price.String())
}

func TestReplayFallsBackToColumns(t *testing.T) {
	store := newMemoryStore()
	order := pastOrder(5, "005930", domain.MarketKR)
	order.SignalPayload = []byte(`{broken`)
	price := 70000.0
	order.Price = &price
	store.add(order)

	submit := &scriptedSubmitter{}
	s := newReplay(store, submit)
	s.runOnce()

	signals := submit.signals()
	require.Len(t, signals, 1)
	assert.Equal(t, "005930", signals[0].Ticker)
	assert.Equal(t, domain.SignalBuy, signals[0].Type)
	require.NotNil(t, signals[0].Price)
	assert.Equal(t, "70000", signals[0].Price.String())
}

func TestFutureOrdersAreNotTaken(t *testing.T) {
	store := newMemoryStore()
	order := pastOrder(6, "AAPL", domain.MarketUS)
	order.ExecuteAfter = time.Now().Add(time.Hour)
	store.add(order)

	submit := &scriptedSubmitter{}
	s := newReplay(store, submit)
	s.runOnce()

	assert.Empty(t, submit.signals())
	assert.Equal(t, domain.ScheduledPending, store.statusOf(6))
}

func TestStartStopLifecycle(t *testing.T) {
	store := newMemoryStore()
	store.add(pastOrder(1, "005930", domain.MarketKR))

	submit := &scriptedSubmitter{}
	s := newReplay(store, submit)

	s.Start()
	// Startup tick runs immediately; wait for it.
	require.Eventually(t, func() bool {
		return len(submit.signals()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	// Stop is idempotent.
	s.Stop()
}

func TestTriggerNowRunsExtraIteration(t *testing.T) {
	store := newMemoryStore()
	submit := &scriptedSubmitter{}
	s := newReplay(store, submit)

	s.Start()
	defer s.Stop()

	store.add(pastOrder(9, "000660", domain.MarketKR))
	s.TriggerNow()

	require.Eventually(t, func() bool {
		return store.statusOf(9) == domain.ScheduledExecuted
	}, 2*time.Second, 10*time.Millisecond)
}
