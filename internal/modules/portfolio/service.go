package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// Service applies order outcomes to the position book and the round-trip
// history. The broker stays authoritative on quantity; this ledger only
// tracks presence, entry price and the pass-through attributes a signal
// carried.
type Service struct {
	positions *PositionRepository
	history   *HistoryRepository
	log       zerolog.Logger
}

// NewService creates the ledger service.
func NewService(positions *PositionRepository, history *HistoryRepository, log zerolog.Logger) *Service {
	return &Service{
		positions: positions,
		history:   history,
		log:       log.With().Str("component", "portfolio").Logger(),
	}
}

// Positions exposes the position repository for read paths.
func (s *Service) Positions() *PositionRepository {
	return s.positions
}

// History exposes the history repository for read paths.
func (s *Service) History() *HistoryRepository {
	return s.history
}

// RecordBuy opens a position after a successful buy. An already-held ticker
// keeps its original entry; re-recording is a no-op.
func (s *Service) RecordBuy(signal domain.Signal, result domain.OrderResult) error {
	if !result.Executed() {
		return nil
	}

	position := domain.Position{
		Market:       result.Market,
		Ticker:       result.Ticker,
		CompanyName:  signal.CompanyName,
		BuyPrice:     result.Price,
		BuyDate:      time.Now().UTC(),
		CurrentPrice: result.Price,
		TriggerType:  signal.TriggerType,
		Sector:       signal.Sector,
		Scenario:     signal.Scenario,
	}
	if signal.TargetPrice != nil {
		v, _ := signal.TargetPrice.Float64()
		position.TargetPrice = &v
	}
	if signal.StopLoss != nil {
		v, _ := signal.StopLoss.Float64()
		position.StopLoss = &v
	}

	if err := s.positions.Create(position); err != nil {
		return fmt.Errorf("failed to record buy: %w", err)
	}
	return nil
}

// RecordSell closes the position after a successful sell: computes the
// round-trip outcome, appends it to history and removes the holding. Selling
// a ticker the ledger never tracked is a no-op; the trade log still carries
// the attempt.
func (s *Service) RecordSell(result domain.OrderResult) error {
	if !result.Executed() {
		return nil
	}

	position, err := s.positions.Get(result.Market, result.Ticker)
	if err != nil {
		return fmt.Errorf("failed to record sell: %w", err)
	}
	if position == nil {
		s.log.Warn().
			Str("market", string(result.Market)).
			Str("ticker", result.Ticker).
			Msg("Sell filled for untracked ticker, ledger unchanged")
		return nil
	}

	now := time.Now().UTC()
	record := domain.TradeRecord{
		Market:      result.Market,
		Ticker:      result.Ticker,
		CompanyName: position.CompanyName,
		BuyPrice:    position.BuyPrice,
		SellPrice:   result.Price,
		ProfitRate:  domain.ProfitRate(position.BuyPrice, result.Price),
		HoldingDays: domain.HoldingDays(position.BuyDate, now),
		BuyDate:     position.BuyDate,
		SellDate:    now,
		Sector:      position.Sector,
	}

	if err := s.history.Append(record); err != nil {
		return fmt.Errorf("failed to record sell: %w", err)
	}
	if _, err := s.positions.Delete(result.Market, result.Ticker); err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	return nil
}
