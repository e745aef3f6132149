// Package portfolio tracks the bot's open positions and completed round
// trips, and enforces the admission rules that gate new buys.
package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// holdingsColumns is the column list for stock_holdings. Kept explicit so a
// schema change breaks loudly instead of silently shifting scan targets.
const holdingsColumns = `id, market, ticker, company_name, buy_price, buy_date, current_price, last_updated, target_price, stop_loss, trigger_type, sector, scenario`

// PositionRepository persists open positions in portfolio.db. A ticker is
// either present (held) or absent (flat); quantity lives at the broker.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a position repository over the portfolio
// database.
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Create inserts a position for the ticker. Inserting a ticker that is
// already held is a silent no-op: the first buy wins and the position keeps
// its original entry price.
func (r *PositionRepository) Create(p domain.Position) error {
	now := time.Now().Unix()

	query := `
		INSERT OR IGNORE INTO stock_holdings
		(market, ticker, company_name, buy_price, buy_date, current_price,
		 last_updated, target_price, stop_loss, trigger_type, sector, scenario)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		string(p.Market),
		normalizeTicker(p.Ticker),
		nullString(p.CompanyName),
		p.BuyPrice,
		p.BuyDate.Unix(),
		p.CurrentPrice,
		now,
		nullFloat64Ptr(p.TargetPrice),
		nullFloat64Ptr(p.StopLoss),
		nullString(p.TriggerType),
		nullString(p.Sector),
		nullBytes(p.Scenario),
	)
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		r.log.Debug().
			Str("market", string(p.Market)).
			Str("ticker", p.Ticker).
			Msg("Position already held, keeping original entry")
		return nil
	}

	r.log.Info().
		Str("market", string(p.Market)).
		Str("ticker", p.Ticker).
		Float64("buy_price", p.BuyPrice).
		Msg("Position created")

	return nil
}

// Get returns the position for the ticker, or nil when flat.
func (r *PositionRepository) Get(market domain.Market, ticker string) (*domain.Position, error) {
	query := "SELECT " + holdingsColumns + " FROM stock_holdings WHERE market = ? AND ticker = ?"

	row := r.db.QueryRow(query, string(market), normalizeTicker(ticker))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return &p, nil
}

// Exists reports whether the ticker is currently held.
func (r *PositionRepository) Exists(market domain.Market, ticker string) (bool, error) {
	query := "SELECT 1 FROM stock_holdings WHERE market = ? AND ticker = ? LIMIT 1"

	var one int
	err := r.db.QueryRow(query, string(market), normalizeTicker(ticker)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check position existence: %w", err)
	}

	return true, nil
}

// List returns all open positions, oldest entry first.
func (r *PositionRepository) List() ([]domain.Position, error) {
	query := "SELECT " + holdingsColumns + " FROM stock_holdings ORDER BY buy_date ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Delete removes the position for the ticker. Returns false when the ticker
// was already flat.
func (r *PositionRepository) Delete(market domain.Market, ticker string) (bool, error) {
	result, err := r.db.Exec(
		"DELETE FROM stock_holdings WHERE market = ? AND ticker = ?",
		string(market), normalizeTicker(ticker),
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete position: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	if affected > 0 {
		r.log.Info().
			Str("market", string(market)).
			Str("ticker", ticker).
			Msg("Position closed")
	}

	return affected > 0, nil
}

// Count returns the number of open positions across both markets.
func (r *PositionRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM stock_holdings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// CountSector returns the number of open positions tagged with the sector.
func (r *PositionRepository) CountSector(sector string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM stock_holdings WHERE sector = ?",
		sector,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sector positions: %w", err)
	}
	return count, nil
}

// UpdateCurrentPrice refreshes the mark on a held position.
func (r *PositionRepository) UpdateCurrentPrice(market domain.Market, ticker string, price float64) error {
	_, err := r.db.Exec(
		"UPDATE stock_holdings SET current_price = ?, last_updated = ? WHERE market = ? AND ticker = ?",
		price, time.Now().Unix(), string(market), normalizeTicker(ticker),
	)
	if err != nil {
		return fmt.Errorf("failed to update current price: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row *sql.Row) (domain.Position, error) { return scanPositionFrom(row) }

func scanPositionFromRows(rows *sql.Rows) (domain.Position, error) { return scanPositionFrom(rows) }

func scanPositionFrom(s scanner) (domain.Position, error) {
	var p domain.Position
	var market string
	var buyDate, lastUpdated int64
	var companyName, triggerType, sector sql.NullString
	var targetPrice, stopLoss sql.NullFloat64
	var scenario []byte

	err := s.Scan(
		&p.ID,
		&market,
		&p.Ticker,
		&companyName,
		&p.BuyPrice,
		&buyDate,
		&p.CurrentPrice,
		&lastUpdated,
		&targetPrice,
		&stopLoss,
		&triggerType,
		&sector,
		&scenario,
	)
	if err != nil {
		return p, err
	}

	p.Market = domain.Market(market)
	p.BuyDate = time.Unix(buyDate, 0).UTC()
	p.LastUpdated = time.Unix(lastUpdated, 0).UTC()
	if companyName.Valid {
		p.CompanyName = companyName.String
	}
	if triggerType.Valid {
		p.TriggerType = triggerType.String
	}
	if sector.Valid {
		p.Sector = sector.String
	}
	if targetPrice.Valid {
		p.TargetPrice = &targetPrice.Float64
	}
	if stopLoss.Valid {
		p.StopLoss = &stopLoss.Float64
	}
	p.Scenario = scenario

	return p, nil
}

// Helper functions

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
