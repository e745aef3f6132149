// Package orders persists signals that arrived while their market was closed
// and hands them back to the replay scheduler once the market opens.
package orders

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/database"
	"github.com/jaylee/stocklab-trader/internal/domain"
)

const scheduledColumns = `id, ticker, market, signal_type, price, company_name, execute_after, status, error_message, signal_payload, created_at, executed_at`

// MarketCalendar filters ready rows to markets that are actually open.
type MarketCalendar interface {
	IsOpen(market domain.Market, t time.Time) bool
}

// ScheduledOrderRepository is the durable deferred-order queue in
// portfolio.db. Rows move pending -> executed or pending -> failed and are
// never revived.
type ScheduledOrderRepository struct {
	db       *sql.DB
	calendar MarketCalendar
	log      zerolog.Logger
}

// NewScheduledOrderRepository creates the repository over the portfolio
// database.
func NewScheduledOrderRepository(db *sql.DB, calendar MarketCalendar, log zerolog.Logger) *ScheduledOrderRepository {
	return &ScheduledOrderRepository{
		db:       db,
		calendar: calendar,
		log:      log.With().Str("repo", "scheduled_order").Logger(),
	}
}

// Enqueue stores the signal for replay at or after executeAfter. The original
// wire payload rides along so replay reconstructs the signal faithfully,
// pass-through fields included. The store does not dedupe; the dispatcher
// must not enqueue the same signal twice.
func (r *ScheduledOrderRepository) Enqueue(signal domain.Signal, executeAfter time.Time) (int64, error) {
	var id int64

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var price interface{}
		if signal.Price != nil {
			v, _ := signal.Price.Float64()
			price = v
		}

		result, err := tx.Exec(`
			INSERT INTO scheduled_orders
			(ticker, market, signal_type, price, company_name, execute_after,
			 status, signal_payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			strings.ToUpper(strings.TrimSpace(signal.Ticker)),
			string(signal.Market),
			string(signal.Type),
			price,
			nullString(signal.CompanyName),
			executeAfter.Unix(),
			string(domain.ScheduledPending),
			nullBytes(signal.Raw),
			time.Now().Unix(),
		)
		if err != nil {
			return err
		}

		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue scheduled order: %w", err)
	}

	r.log.Info().
		Int64("id", id).
		Str("market", string(signal.Market)).
		Str("ticker", signal.Ticker).
		Str("signal_type", string(signal.Type)).
		Time("execute_after", executeAfter).
		Msg("Order scheduled for market open")

	return id, nil
}

// TakeReady returns pending rows whose execute_after has passed and whose
// market is open right now. No row locks are taken: the single replay
// goroutine is the only consumer.
func (r *ScheduledOrderRepository) TakeReady(now time.Time) ([]domain.ScheduledOrder, error) {
	query := `
		SELECT ` + scheduledColumns + ` FROM scheduled_orders
		WHERE status = ? AND execute_after <= ?
		ORDER BY execute_after ASC, id ASC
	`

	rows, err := r.db.Query(query, string(domain.ScheduledPending), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query ready orders: %w", err)
	}
	defer rows.Close()

	var ready []domain.ScheduledOrder
	for rows.Next() {
		order, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled order: %w", err)
		}
		if !r.calendar.IsOpen(order.Market, now) {
			continue
		}
		ready = append(ready, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled orders: %w", err)
	}

	return ready, nil
}

// MarkExecuted finalizes a pending row as executed. Calling it on a row that
// is already terminal is an idempotent no-op, keeping the earlier
// executed_at.
func (r *ScheduledOrderRepository) MarkExecuted(id int64) error {
	result, err := r.db.Exec(`
		UPDATE scheduled_orders
		SET status = ?, executed_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.ScheduledExecuted), time.Now().Unix(), id, string(domain.ScheduledPending))
	if err != nil {
		return fmt.Errorf("failed to mark scheduled order executed: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		r.log.Debug().Int64("id", id).Msg("Scheduled order already terminal")
	}
	return nil
}

// MarkFailed finalizes a pending row as failed with the failure message.
// Terminal rows are left untouched; failed rows are never retried.
func (r *ScheduledOrderRepository) MarkFailed(id int64, message string) error {
	result, err := r.db.Exec(`
		UPDATE scheduled_orders
		SET status = ?, error_message = ?, executed_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.ScheduledFailed), message, time.Now().Unix(), id, string(domain.ScheduledPending))
	if err != nil {
		return fmt.Errorf("failed to mark scheduled order failed: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		r.log.Debug().Int64("id", id).Msg("Scheduled order already terminal")
	}
	return nil
}

// PendingCount reports how many rows still await replay.
func (r *ScheduledOrderRepository) PendingCount() (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM scheduled_orders WHERE status = ?",
		string(domain.ScheduledPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}
	return count, nil
}

// Recent returns the most recently created rows regardless of status, newest
// first. Used by the ops endpoint.
func (r *ScheduledOrderRepository) Recent(limit int) ([]domain.ScheduledOrder, error) {
	query := `
		SELECT ` + scheduledColumns + ` FROM scheduled_orders
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.ScheduledOrder
	for rows.Next() {
		order, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled orders: %w", err)
	}

	return orders, nil
}

func scanScheduled(rows *sql.Rows) (domain.ScheduledOrder, error) {
	var order domain.ScheduledOrder
	var market, signalType, status string
	var executeAfter, createdAt int64
	var price sql.NullFloat64
	var companyName, errorMessage sql.NullString
	var executedAt sql.NullInt64
	var payload []byte

	err := rows.Scan(
		&order.ID,
		&order.Ticker,
		&market,
		&signalType,
		&price,
		&companyName,
		&executeAfter,
		&status,
		&errorMessage,
		&payload,
		&createdAt,
		&executedAt,
	)
	if err != nil {
		return order, err
	}

	order.Market = domain.Market(market)
	order.SignalType = domain.SignalType(signalType)
	order.Status = domain.ScheduledStatus(status)
	order.ExecuteAfter = time.Unix(executeAfter, 0).UTC()
	order.CreatedAt = time.Unix(createdAt, 0).UTC()
	if price.Valid {
		order.Price = &price.Float64
	}
	if companyName.Valid {
		order.CompanyName = companyName.String
	}
	if errorMessage.Valid {
		order.ErrorMessage = &errorMessage.String
	}
	if executedAt.Valid {
		t := time.Unix(executedAt.Int64, 0).UTC()
		order.ExecutedAt = &t
	}
	order.SignalPayload = payload

	return order, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
