package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a validated external intent to buy, sell, or record a market
// event. Values of this type only exist after ParseSignal succeeded; internal
// code never sees a partially constructed signal.
type Signal struct {
	Ticker      string           `json:"ticker"`
	CompanyName string           `json:"company_name,omitempty"`
	Type        SignalType       `json:"signal_type"`
	Price       *decimal.Decimal `json:"price,omitempty"` // optional limit price hint
	Market      Market           `json:"market"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      string           `json:"source,omitempty"`

	// Pass-through attributes persisted onto the position when a BUY fills.
	Sector      string           `json:"sector,omitempty"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	TriggerType string           `json:"trigger_type,omitempty"`
	Scenario    json.RawMessage  `json:"scenario,omitempty"`

	// Raw holds the original wire bytes, kept for deferred-order persistence.
	Raw []byte `json:"-"`
}

var (
	krTickerPattern = regexp.MustCompile(`^[0-9]{6}$`)
	usTickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)
)

// wireSignal mirrors the JSON payload on the bus. Unknown fields are ignored
// by encoding/json; absent fields stay nil so defaults can be applied.
type wireSignal struct {
	Ticker      string           `json:"ticker"`
	CompanyName string           `json:"company_name"`
	SignalType  string           `json:"signal_type"`
	Price       *decimal.Decimal `json:"price"`
	Market      string           `json:"market"`
	Timestamp   *time.Time       `json:"timestamp"`
	Source      string           `json:"source"`
	Sector      string           `json:"sector"`
	TargetPrice *decimal.Decimal `json:"target_price"`
	StopLoss    *decimal.Decimal `json:"stop_loss"`
	TriggerType string           `json:"trigger_type"`
	Scenario    json.RawMessage  `json:"scenario"`
}

// ParseSignal parses and validates a wire payload into a Signal.
//
// Contract: ticker is trimmed and upper-cased; signal_type must be one of
// BUY/SELL/EVENT (case-insensitive); market defaults to KR; price, when
// present, must be non-negative; timestamp defaults to the receiver's wall
// clock. Any violation returns a schema-kind error and a zero Signal.
func ParseSignal(data []byte) (Signal, error) {
	var w wireSignal
	if err := json.Unmarshal(data, &w); err != nil {
		return Signal{}, WrapError(ErrSchema, err, "malformed signal payload")
	}

	ticker := strings.ToUpper(strings.TrimSpace(w.Ticker))
	if ticker == "" {
		return Signal{}, NewError(ErrSchema, "ticker is required")
	}

	st := SignalType(strings.ToUpper(strings.TrimSpace(w.SignalType)))
	if !st.Valid() {
		return Signal{}, NewError(ErrSchema, fmt.Sprintf("unknown signal_type %q", w.SignalType))
	}

	market := MarketKR
	if w.Market != "" {
		market = Market(strings.ToUpper(strings.TrimSpace(w.Market)))
		if !market.Valid() {
			return Signal{}, NewError(ErrSchema, fmt.Sprintf("unknown market %q", w.Market))
		}
	}

	switch market {
	case MarketKR:
		if !krTickerPattern.MatchString(ticker) {
			return Signal{}, NewError(ErrSchema, fmt.Sprintf("invalid KR ticker %q", ticker))
		}
	case MarketUS:
		if !usTickerPattern.MatchString(ticker) {
			return Signal{}, NewError(ErrSchema, fmt.Sprintf("invalid US ticker %q", ticker))
		}
	}

	if w.Price != nil && w.Price.IsNegative() {
		return Signal{}, NewError(ErrSchema, "price must be non-negative")
	}
	if w.TargetPrice != nil && w.TargetPrice.IsNegative() {
		return Signal{}, NewError(ErrSchema, "target_price must be non-negative")
	}
	if w.StopLoss != nil && w.StopLoss.IsNegative() {
		return Signal{}, NewError(ErrSchema, "stop_loss must be non-negative")
	}

	ts := time.Now().UTC()
	if w.Timestamp != nil {
		ts = w.Timestamp.UTC()
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	return Signal{
		Ticker:      ticker,
		CompanyName: strings.TrimSpace(w.CompanyName),
		Type:        st,
		Price:       w.Price,
		Market:      market,
		Timestamp:   ts,
		Source:      strings.TrimSpace(w.Source),
		Sector:      strings.TrimSpace(w.Sector),
		TargetPrice: w.TargetPrice,
		StopLoss:    w.StopLoss,
		TriggerType: strings.TrimSpace(w.TriggerType),
		Scenario:    w.Scenario,
		Raw:         raw,
	}, nil
}

// ToWire serializes the signal back into its bus representation. Parsing the
// result yields a signal semantically equal to this one on all required
// fields.
func (s Signal) ToWire() ([]byte, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return nil, WrapError(ErrSchema, err, "failed to serialize signal")
	}
	return out, nil
}

// Key identifies the per-ticker serialization domain for this signal.
func (s Signal) Key() string {
	return string(s.Market) + ":" + s.Ticker
}
