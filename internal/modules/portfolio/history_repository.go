package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

const historyColumns = `id, market, ticker, company_name, buy_price, sell_price, profit_rate, holding_days, buy_date, sell_date, sector, created_at`

// HistoryRepository appends completed round trips to trading_history in the
// ledger database. Rows are never updated or deleted.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a history repository over the ledger database.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// Append records one completed round trip.
func (r *HistoryRepository) Append(record domain.TradeRecord) error {
	query := `
		INSERT INTO trading_history
		(market, ticker, company_name, buy_price, sell_price, profit_rate,
		 holding_days, buy_date, sell_date, sector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		string(record.Market),
		normalizeTicker(record.Ticker),
		nullString(record.CompanyName),
		record.BuyPrice,
		record.SellPrice,
		record.ProfitRate,
		record.HoldingDays,
		record.BuyDate.Unix(),
		record.SellDate.Unix(),
		nullString(record.Sector),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade record: %w", err)
	}

	r.log.Info().
		Str("market", string(record.Market)).
		Str("ticker", record.Ticker).
		Float64("profit_rate", record.ProfitRate).
		Int("holding_days", record.HoldingDays).
		Msg("Round trip recorded")

	return nil
}

// Recent returns the most recently closed trades, newest first.
func (r *HistoryRepository) Recent(limit int) ([]domain.TradeRecord, error) {
	query := `
		SELECT ` + historyColumns + ` FROM trading_history
		ORDER BY sell_date DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade history: %w", err)
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var market string
		var buyDate, sellDate, createdAt int64
		var companyName, sector sql.NullString

		err := rows.Scan(
			&rec.ID,
			&market,
			&rec.Ticker,
			&companyName,
			&rec.BuyPrice,
			&rec.SellPrice,
			&rec.ProfitRate,
			&rec.HoldingDays,
			&buyDate,
			&sellDate,
			&sector,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}

		rec.Market = domain.Market(market)
		rec.BuyDate = time.Unix(buyDate, 0).UTC()
		rec.SellDate = time.Unix(sellDate, 0).UTC()
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		if companyName.Valid {
			rec.CompanyName = companyName.String
		}
		if sector.Valid {
			rec.Sector = sector.String
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade records: %w", err)
	}

	return records, nil
}

// CountSince counts round trips closed at or after the cutoff.
func (r *HistoryRepository) CountSince(cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM trading_history WHERE sell_date >= ?",
		cutoff.Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trade records: %w", err)
	}
	return count, nil
}
