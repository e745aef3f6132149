// Package di wires the application: databases, repositories, services and
// background loops. The Container is the single source of truth for live
// instances and is what main shuts down.
package di

import (
	"github.com/jaylee/stocklab-trader/internal/calendar"
	"github.com/jaylee/stocklab-trader/internal/coordinator"
	"github.com/jaylee/stocklab-trader/internal/database"
	"github.com/jaylee/stocklab-trader/internal/dispatch"
	"github.com/jaylee/stocklab-trader/internal/events"
	"github.com/jaylee/stocklab-trader/internal/modules/orders"
	"github.com/jaylee/stocklab-trader/internal/modules/portfolio"
	"github.com/jaylee/stocklab-trader/internal/modules/trading"
	"github.com/jaylee/stocklab-trader/internal/notify"
	"github.com/jaylee/stocklab-trader/internal/scheduler"
	"github.com/jaylee/stocklab-trader/internal/server"
)

// Container holds every live dependency of the process.
//
// Two-database architecture:
//   - ledger.db: append-only execution log and round-trip history
//     (full-sync pragmas)
//   - portfolio.db: position book and deferred orders
type Container struct {
	LedgerDB    *database.DB
	PortfolioDB *database.DB

	// Repositories
	PositionRepo  *portfolio.PositionRepository
	HistoryRepo   *portfolio.HistoryRepository
	TradeLogRepo  *trading.TradeLogRepository
	ScheduledRepo *orders.ScheduledOrderRepository

	// Services
	Calendar    *calendar.Service
	Emitter     *events.Emitter
	Notifier    *notify.Notifier
	Admission   *portfolio.AdmissionService
	Ledger      *portfolio.Service
	Coordinator *coordinator.Coordinator
	Dispatcher  *dispatch.Dispatcher

	// Background loops
	Replay *scheduler.ReplayScheduler
	Cron   *scheduler.CronScheduler

	// Ops server
	Server *server.Server
}

// Databases returns both handles for components that operate on all of them
// (maintenance, backup, health).
func (c *Container) Databases() []*database.DB {
	return []*database.DB{c.LedgerDB, c.PortfolioDB}
}

// Close releases the database handles. Call after every consumer has stopped.
func (c *Container) Close() {
	if c.PortfolioDB != nil {
		c.PortfolioDB.Close()
	}
	if c.LedgerDB != nil {
		c.LedgerDB.Close()
	}
}
