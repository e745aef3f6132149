package trading

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
	testhelper "github.com/jaylee/stocklab-trader/internal/testing"
)

func newTradeLogRepo(t *testing.T) *TradeLogRepository {
	t.Helper()
	db, _ := testhelper.NewTestDB(t, "ledger")
	return NewTradeLogRepository(db.Conn(), zerolog.Nop())
}

func sampleLog(ticker string, success bool) domain.TradeLog {
	return domain.TradeLog{
		AttemptID:   uuid.NewString(),
		Market:      domain.MarketKR,
		Ticker:      ticker,
		Action:      domain.SignalBuy,
		Quantity:    7,
		Price:       71000,
		TotalAmount: 497000,
		OrderNo:     "0001234567",
		Success:     success,
		Message:     "filled",
	}
}

func TestTradeLogAppendAndRecent(t *testing.T) {
	repo := newTradeLogRepo(t)

	require.NoError(t, repo.Append(sampleLog("005930", true)))
	require.NoError(t, repo.Append(sampleLog("000660", false)))

	logs, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "000660", logs[0].Ticker, "newest first")
	assert.False(t, logs[0].Success)
	assert.True(t, logs[1].Success)
	assert.NotEmpty(t, logs[1].AttemptID)
}

func TestTradeLogByTicker(t *testing.T) {
	repo := newTradeLogRepo(t)

	require.NoError(t, repo.Append(sampleLog("005930", true)))
	require.NoError(t, repo.Append(sampleLog("005930", false)))
	require.NoError(t, repo.Append(sampleLog("000660", true)))

	logs, err := repo.ByTicker(domain.MarketKR, "005930", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestTradeLogCountSince(t *testing.T) {
	repo := newTradeLogRepo(t)

	old := sampleLog("005930", true)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.Append(old))

	require.NoError(t, repo.Append(sampleLog("005930", true)))
	require.NoError(t, repo.Append(sampleLog("000660", false)))

	succeeded, failed, err := repo.CountSince(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestTradeLogSince(t *testing.T) {
	repo := newTradeLogRepo(t)

	old := sampleLog("005930", true)
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.Append(old))
	require.NoError(t, repo.Append(sampleLog("000660", true)))

	logs, err := repo.Since(time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "000660", logs[0].Ticker)
}
