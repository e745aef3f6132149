package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jaylee/stocklab-trader/internal/database"
	"github.com/jaylee/stocklab-trader/internal/domain"
	"github.com/jaylee/stocklab-trader/internal/version"
)

const defaultListLimit = 50

// PositionReader serves the open position book.
type PositionReader interface {
	List() ([]domain.Position, error)
	Count() (int, error)
}

// TradeLogReader serves recent execution attempts.
type TradeLogReader interface {
	Recent(limit int) ([]domain.TradeLog, error)
}

// HistoryReader serves completed round trips.
type HistoryReader interface {
	Recent(limit int) ([]domain.TradeRecord, error)
}

// ScheduledReader serves the deferred-order queue.
type ScheduledReader interface {
	Recent(limit int) ([]domain.ScheduledOrder, error)
	PendingCount() (int, error)
}

// ReplayTrigger nudges the replay scheduler outside its poll cadence.
type ReplayTrigger interface {
	TriggerNow()
}

// Handlers holds the ops endpoint implementations.
type Handlers struct {
	databases []*database.DB
	positions PositionReader
	trades    TradeLogReader
	history   HistoryReader
	scheduled ScheduledReader
	replay    ReplayTrigger
	mode      domain.TradeMode
	startedAt time.Time
	log       zerolog.Logger
}

// NewHandlers wires the read repositories and the replay trigger.
func NewHandlers(
	databases []*database.DB,
	positions PositionReader,
	trades TradeLogReader,
	history HistoryReader,
	scheduled ScheduledReader,
	replay ReplayTrigger,
	mode domain.TradeMode,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		databases: databases,
		positions: positions,
		trades:    trades,
		history:   history,
		scheduled: scheduled,
		replay:    replay,
		mode:      mode,
		startedAt: time.Now(),
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// Health pings every database. Any failure returns 503 so a supervisor can
// restart the process.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.databases))
	healthy := true
	for _, db := range h.databases {
		if err := db.HealthCheck(ctx); err != nil {
			checks[db.Name()] = err.Error()
			healthy = false
			continue
		}
		checks[db.Name()] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy":   healthy,
		"databases": checks,
	})
}

// Status reports version, mode, uptime, book counters and process resource
// usage.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	positionCount, err := h.positions.Count()
	if err != nil {
		h.serverError(w, err, "failed to count positions")
		return
	}
	pendingCount, err := h.scheduled.PendingCount()
	if err != nil {
		h.serverError(w, err, "failed to count pending orders")
		return
	}

	status := map[string]interface{}{
		"version":        version.Version,
		"mode":           string(h.mode),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"positions":      positionCount,
		"pending_orders": pendingCount,
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			status["memory_rss_mb"] = float64(mem.RSS) / 1024 / 1024
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			status["cpu_percent"] = cpu
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// Positions returns every open position.
func (h *Handlers) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.List()
	if err != nil {
		h.serverError(w, err, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// Trades returns the most recent execution attempts, newest first.
func (h *Handlers) Trades(w http.ResponseWriter, r *http.Request) {
	logs, err := h.trades.Recent(limitParam(r))
	if err != nil {
		h.serverError(w, err, "failed to list trades")
		return
	}
	if logs == nil {
		logs = []domain.TradeLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// History returns completed round trips, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.Recent(limitParam(r))
	if err != nil {
		h.serverError(w, err, "failed to list history")
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Scheduled returns recent deferred orders, optionally filtered by
// ?status=pending|executed|failed.
func (h *Handlers) Scheduled(w http.ResponseWriter, r *http.Request) {
	orders, err := h.scheduled.Recent(limitParam(r))
	if err != nil {
		h.serverError(w, err, "failed to list scheduled orders")
		return
	}

	if filter := r.URL.Query().Get("status"); filter != "" {
		filtered := make([]domain.ScheduledOrder, 0, len(orders))
		for _, o := range orders {
			if string(o.Status) == filter {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	if orders == nil {
		orders = []domain.ScheduledOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// TriggerReplay nudges the replay scheduler to check the queue immediately.
func (h *Handlers) TriggerReplay(w http.ResponseWriter, r *http.Request) {
	h.replay.TriggerNow()
	h.log.Info().Msg("Replay tick triggered via API")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (h *Handlers) serverError(w http.ResponseWriter, err error, msg string) {
	h.log.Error().Err(err).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
