package di

import (
	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/modules/orders"
	"github.com/jaylee/stocklab-trader/internal/modules/portfolio"
	"github.com/jaylee/stocklab-trader/internal/modules/trading"
)

// InitializeRepositories creates the data access layer. The calendar must
// already be set: the scheduled-order repository filters ready rows by market
// session.
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.HistoryRepo = portfolio.NewHistoryRepository(container.LedgerDB.Conn(), log)
	container.TradeLogRepo = trading.NewTradeLogRepository(container.LedgerDB.Conn(), log)
	container.ScheduledRepo = orders.NewScheduledOrderRepository(container.PortfolioDB.Conn(), container.Calendar, log)
}
