// Package trading owns the append-only trade-execution log: one row per
// order attempt, successful or not.
package trading

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

const tradeLogColumns = `id, attempt_id, market, ticker, action, quantity, price, total_amount, order_no, success, message, timestamp`

// TradeLogRepository appends execution attempts to trade_logs in the ledger
// database.
type TradeLogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeLogRepository creates a trade-log repository over the ledger
// database.
func NewTradeLogRepository(db *sql.DB, log zerolog.Logger) *TradeLogRepository {
	return &TradeLogRepository{
		db:  db,
		log: log.With().Str("repo", "trade_log").Logger(),
	}
}

// Append records one execution attempt.
func (r *TradeLogRepository) Append(entry domain.TradeLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO trade_logs
		(attempt_id, market, ticker, action, quantity, price, total_amount,
		 order_no, success, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		entry.AttemptID,
		string(entry.Market),
		strings.ToUpper(strings.TrimSpace(entry.Ticker)),
		string(entry.Action),
		entry.Quantity,
		entry.Price,
		entry.TotalAmount,
		nullString(entry.OrderNo),
		boolToInt(entry.Success),
		nullString(entry.Message),
		entry.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade log: %w", err)
	}

	return nil
}

// Recent returns the most recent attempts, newest first.
func (r *TradeLogRepository) Recent(limit int) ([]domain.TradeLog, error) {
	query := `
		SELECT ` + tradeLogColumns + ` FROM trade_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade logs: %w", err)
	}
	defer rows.Close()

	return collectLogs(rows)
}

// Since returns attempts at or after the cutoff, oldest first. Used by the
// daily summary.
func (r *TradeLogRepository) Since(cutoff time.Time) ([]domain.TradeLog, error) {
	query := `
		SELECT ` + tradeLogColumns + ` FROM trade_logs
		WHERE timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Query(query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get trade logs since cutoff: %w", err)
	}
	defer rows.Close()

	return collectLogs(rows)
}

// ByTicker returns the most recent attempts for one ticker, newest first.
func (r *TradeLogRepository) ByTicker(market domain.Market, ticker string, limit int) ([]domain.TradeLog, error) {
	query := `
		SELECT ` + tradeLogColumns + ` FROM trade_logs
		WHERE market = ? AND ticker = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, string(market), strings.ToUpper(strings.TrimSpace(ticker)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade logs by ticker: %w", err)
	}
	defer rows.Close()

	return collectLogs(rows)
}

// CountSince counts attempts at or after the cutoff, split by outcome.
func (r *TradeLogRepository) CountSince(cutoff time.Time) (succeeded, failed int, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM trade_logs
		WHERE timestamp >= ?
	`

	if err := r.db.QueryRow(query, cutoff.Unix()).Scan(&succeeded, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count trade logs: %w", err)
	}
	return succeeded, failed, nil
}

func collectLogs(rows *sql.Rows) ([]domain.TradeLog, error) {
	var logs []domain.TradeLog
	for rows.Next() {
		var entry domain.TradeLog
		var market, action string
		var ts int64
		var orderNo, message sql.NullString
		var success int

		err := rows.Scan(
			&entry.ID,
			&entry.AttemptID,
			&market,
			&entry.Ticker,
			&action,
			&entry.Quantity,
			&entry.Price,
			&entry.TotalAmount,
			&orderNo,
			&success,
			&message,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade log: %w", err)
		}

		entry.Market = domain.Market(market)
		entry.Action = domain.SignalType(action)
		entry.Success = success == 1
		entry.Timestamp = time.Unix(ts, 0).UTC()
		if orderNo.Valid {
			entry.OrderNo = orderNo.String
		}
		if message.Valid {
			entry.Message = message.String
		}

		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade logs: %w", err)
	}

	return logs, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
