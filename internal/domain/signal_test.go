package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalFullPayload(t *testing.T) {
	payload := []byte(`{
		"ticker": "aapl",
		"company_name": "Apple Inc.",
		"signal_type": "buy",
		"price": 185.42,
		"market": "us",
		"timestamp": "2026-08-24T14:30:00Z",
		"source": "momentum-screener",
		"sector": "Technology",
		"target_price": 210,
		"stop_loss": 170.5,
		"trigger_type": "breakout",
		"scenario": {"note": "gap up on volume"}
	}`)

	signal, err := ParseSignal(payload)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", signal.Ticker)
	assert.Equal(t, "Apple Inc.", signal.CompanyName)
	assert.Equal(t, SignalBuy, signal.Type)
	assert.Equal(t, MarketUS, signal.Market)
	assert.True(t, signal.Price.Equal(decimal.NewFromFloat(185.42)))
	assert.Equal(t, time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC), signal.Timestamp)
	assert.Equal(t, "momentum-screener", signal.Source)
	assert.Equal(t, "Technology", signal.Sector)
	assert.True(t, signal.TargetPrice.Equal(decimal.NewFromInt(210)))
	assert.True(t, signal.StopLoss.Equal(decimal.NewFromFloat(170.5)))
	assert.Equal(t, "breakout", signal.TriggerType)
	assert.JSONEq(t, `{"note": "gap up on volume"}`, string(signal.Scenario))
	assert.Equal(t, payload, signal.Raw)
}

func TestParseSignalDefaults(t *testing.T) {
	signal, err := ParseSignal([]byte(`{"ticker": "005930", "signal_type": "SELL"}`))
	require.NoError(t, err)

	assert.Equal(t, MarketKR, signal.Market, "market defaults to KR")
	assert.Nil(t, signal.Price)
	assert.WithinDuration(t, time.Now().UTC(), signal.Timestamp, 5*time.Second)
}

func TestParseSignalRejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{broken`},
		{"missing ticker", `{"signal_type": "BUY"}`},
		{"blank ticker", `{"ticker": "   ", "signal_type": "BUY"}`},
		{"unknown type", `{"ticker": "005930", "signal_type": "HOLD"}`},
		{"unknown market", `{"ticker": "005930", "signal_type": "BUY", "market": "JP"}`},
		{"kr ticker too short", `{"ticker": "5930", "signal_type": "BUY", "market": "KR"}`},
		{"kr ticker letters", `{"ticker": "SAMSNG", "signal_type": "BUY", "market": "KR"}`},
		{"us ticker too long", `{"ticker": "TOOLONG", "signal_type": "BUY", "market": "US"}`},
		{"us ticker digits", `{"ticker": "12345", "signal_type": "BUY", "market": "US"}`},
		{"negative price", `{"ticker": "005930", "signal_type": "BUY", "price": -1}`},
		{"negative stop loss", `{"ticker": "005930", "signal_type": "BUY", "stop_loss": -0.5}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSignal([]byte(tc.payload))
			require.Error(t, err)
			assert.True(t, IsKind(err, ErrSchema), "want schema kind, got %v", err)
		})
	}
}

func TestParseSignalIgnoresUnknownFields(t *testing.T) {
	signal, err := ParseSignal([]byte(`{"ticker": "005930", "signal_type": "BUY", "confidence": 0.93}`))
	require.NoError(t, err)
	assert.Equal(t, "005930", signal.Ticker)
}

func TestToWireRoundTrip(t *testing.T) {
	price := decimal.NewFromFloat(185.42)
	original := Signal{
		Ticker:    "AAPL",
		Type:      SignalBuy,
		Market:    MarketUS,
		Price:     &price,
		Sector:    "Technology",
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	wire, err := original.ToWire()
	require.NoError(t, err)

	parsed, err := ParseSignal(wire)
	require.NoError(t, err)
	assert.Equal(t, original.Ticker, parsed.Ticker)
	assert.Equal(t, original.Type, parsed.Type)
	assert.Equal(t, original.Market, parsed.Market)
	assert.True(t, parsed.Price.Equal(price))
	assert.Equal(t, original.Sector, parsed.Sector)
}

func TestSignalKey(t *testing.T) {
	assert.Equal(t, "KR:005930", Signal{Market: MarketKR, Ticker: "005930"}.Key())
	assert.Equal(t, "US:AAPL", Signal{Market: MarketUS, Ticker: "AAPL"}.Key())
}
