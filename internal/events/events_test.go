package events

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitWritesEventTypeAndData(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(zerolog.New(&buf))

	emitter.Emit(&TradeExecutedData{
		Market:   "KR",
		Ticker:   "005930",
		Action:   "BUY",
		Quantity: 4,
		Price:    71000,
		Success:  true,
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "trade_executed", record["event_type"])
	assert.Equal(t, "events", record["component"])

	data, ok := record["data"].(map[string]interface{})
	require.True(t, ok, "data should be an object")
	assert.Equal(t, "005930", data["ticker"])
	assert.Equal(t, true, data["success"])
}

func TestEventTypesRoundTrip(t *testing.T) {
	testCases := []struct {
		data     EventData
		expected EventType
	}{
		{&TradeExecutedData{}, TradeExecuted},
		{&OrderScheduledData{}, OrderScheduled},
		{&OrderReplayedData{}, OrderReplayed},
		{&PositionOpenedData{}, PositionOpened},
		{&PositionClosedData{}, PositionClosed},
		{&SignalRejectedData{}, SignalRejected},
		{&MarketEventData{}, MarketEvent},
		{&SystemLifecycleData{Type: SystemStarted}, SystemStarted},
		{&SystemLifecycleData{Type: SystemStopped}, SystemStopped},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.data.EventType())
	}
}
