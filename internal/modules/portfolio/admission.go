package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// AdmissionConfig bounds how concentrated the book may get.
type AdmissionConfig struct {
	// MaxPositions caps open positions across both markets.
	MaxPositions int
	// MaxPositionsSector caps open positions in a single sector.
	MaxPositionsSector int
	// SectorConcentration caps the share one sector may reach after
	// admitting the candidate, as a fraction of the whole book.
	SectorConcentration float64
}

// Decision is the outcome of an admission check. Refusals carry the skip
// reason that ends up on the order result.
type Decision struct {
	Admit  bool
	Reason string
}

// AdmissionService decides whether a BUY may reach the broker. Checks run
// before any wire call so refused orders cost nothing.
type AdmissionService struct {
	positions *PositionRepository
	cfg       AdmissionConfig
	log       zerolog.Logger
}

// NewAdmissionService creates an admission service over the position book.
func NewAdmissionService(positions *PositionRepository, cfg AdmissionConfig, log zerolog.Logger) *AdmissionService {
	return &AdmissionService{
		positions: positions,
		cfg:       cfg,
		log:       log.With().Str("component", "admission").Logger(),
	}
}

// Check evaluates the slot and sector rules for a candidate buy.
//
// Order of checks: already-held short-circuits first (the buy is a no-op, not
// a violation), then the global slot limit, then the sector caps. Positions
// without a sector tag are exempt from the sector caps but never from the
// slot limit.
func (s *AdmissionService) Check(market domain.Market, ticker, sector string) (Decision, error) {
	held, err := s.positions.Exists(market, ticker)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check holding: %w", err)
	}
	if held {
		return Decision{Reason: domain.SkipAlreadyHolding}, nil
	}

	total, err := s.positions.Count()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count positions: %w", err)
	}
	if total >= s.cfg.MaxPositions {
		s.log.Info().
			Str("ticker", ticker).
			Int("positions", total).
			Int("limit", s.cfg.MaxPositions).
			Msg("Buy refused: slot limit reached")
		return Decision{Reason: domain.SkipSlotLimit}, nil
	}

	if sector != "" {
		inSector, err := s.positions.CountSector(sector)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to count sector positions: %w", err)
		}
		if inSector >= s.cfg.MaxPositionsSector {
			s.log.Info().
				Str("ticker", ticker).
				Str("sector", sector).
				Int("in_sector", inSector).
				Msg("Buy refused: sector position cap reached")
			return Decision{Reason: domain.SkipSectorLimit}, nil
		}

		// Share the sector would hold after admitting this candidate. On a
		// book smaller than one full sector slot at the limit the ratio is
		// degenerate (the first tagged buy would always breach it), so it
		// only applies once the post-admission book clears that size.
		if after := total + 1; s.cfg.SectorConcentration > 0 && after > int(1/s.cfg.SectorConcentration) {
			share := float64(inSector+1) / float64(after)
			if share > s.cfg.SectorConcentration {
				s.log.Info().
					Str("ticker", ticker).
					Str("sector", sector).
					Float64("share", share).
					Float64("limit", s.cfg.SectorConcentration).
					Msg("Buy refused: sector concentration cap")
				return Decision{Reason: domain.SkipSectorLimit}, nil
			}
		}
	}

	return Decision{Admit: true}, nil
}
