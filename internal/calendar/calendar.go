// Package calendar answers market-session questions for the venues the core
// trades: KRX for Korean equities and NYSE for US equities.
package calendar

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

// TradingWindow represents the single daily trading period of a venue.
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// marketCalendar defines trading hours and holidays for one market.
type marketCalendar struct {
	market   domain.Market
	name     string
	timezone *time.Location
	window   TradingWindow
	// replayOpenMinute is the minute-of-hour NextOpen clamps to. KR replays
	// at 09:05 rather than 09:00 to tolerate broker-side startup drift.
	replayOpenMinute int
	holidays         map[string]struct{} // "2006-01-02" keys in market-local dates
}

// Service is the authoritative oracle for market sessions.
type Service struct {
	calendars map[domain.Market]*marketCalendar
	log       zerolog.Logger
}

// Config carries operator-supplied holiday extensions per market, as
// YYYY-MM-DD strings. Unparseable entries are logged and skipped.
type Config struct {
	ExtraHolidaysKR []string
	ExtraHolidaysUS []string
}

// New creates a calendar service with the built-in KRX and NYSE holiday
// tables plus any operator-supplied extra dates.
func New(cfg Config, log zerolog.Logger) *Service {
	s := &Service{
		calendars: make(map[domain.Market]*marketCalendar),
		log:       log.With().Str("component", "calendar").Logger(),
	}

	seoulLoc, _ := time.LoadLocation("Asia/Seoul")
	nyLoc, _ := time.LoadLocation("America/New_York")

	kr := &marketCalendar{
		market:           domain.MarketKR,
		name:             "KRX",
		timezone:         seoulLoc,
		window:           TradingWindow{OpenHour: 9, OpenMinute: 0, CloseHour: 15, CloseMinute: 30},
		replayOpenMinute: 5,
		holidays:         make(map[string]struct{}),
	}
	for _, d := range krxHolidays {
		kr.holidays[d] = struct{}{}
	}
	s.addExtraHolidays(kr, cfg.ExtraHolidaysKR)

	us := &marketCalendar{
		market:           domain.MarketUS,
		name:             "NYSE",
		timezone:         nyLoc,
		window:           TradingWindow{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
		replayOpenMinute: 30,
		holidays:         make(map[string]struct{}),
	}
	for _, d := range nyseHolidays {
		us.holidays[d] = struct{}{}
	}
	s.addExtraHolidays(us, cfg.ExtraHolidaysUS)

	s.calendars[domain.MarketKR] = kr
	s.calendars[domain.MarketUS] = us

	s.log.Info().
		Int("krx_holidays", len(kr.holidays)).
		Int("nyse_holidays", len(us.holidays)).
		Msg("Market calendars initialized")

	return s
}

func (s *Service) addExtraHolidays(cal *marketCalendar, dates []string) {
	for _, d := range dates {
		if _, err := time.ParseInLocation("2006-01-02", d, cal.timezone); err != nil {
			s.log.Warn().Str("market", cal.name).Str("date", d).Msg("Skipping unparseable extra holiday")
			continue
		}
		cal.holidays[d] = struct{}{}
	}
}

// krxHolidays lists KRX full-day closures. Seollal and Chuseok blocks shift
// every year; the table is per-year and must be extended annually.
var krxHolidays = []string{
	// 2025
	"2025-01-01", // New Year's Day
	"2025-01-27", // Seollal holiday
	"2025-01-28", // Seollal
	"2025-01-29", // Seollal
	"2025-01-30", // Seollal holiday
	"2025-03-03", // Independence Movement Day (observed)
	"2025-05-01", // Labor Day
	"2025-05-05", // Children's Day / Buddha's Birthday
	"2025-05-06", // Substitute holiday
	"2025-06-06", // Memorial Day
	"2025-08-15", // Liberation Day
	"2025-10-03", // National Foundation Day
	"2025-10-06", // Chuseok
	"2025-10-07", // Chuseok
	"2025-10-08", // Chuseok holiday
	"2025-10-09", // Hangul Day
	"2025-12-25", // Christmas
	"2025-12-31", // Year-end closing day
	// 2026
	"2026-01-01", // New Year's Day
	"2026-02-16", // Seollal holiday
	"2026-02-17", // Seollal
	"2026-02-18", // Seollal holiday
	"2026-03-02", // Independence Movement Day (observed)
	"2026-05-01", // Labor Day
	"2026-05-05", // Children's Day
	"2026-05-25", // Buddha's Birthday (observed)
	"2026-08-17", // Liberation Day (observed)
	"2026-09-24", // Chuseok
	"2026-09-25", // Chuseok holiday
	"2026-10-05", // National Foundation Day (observed)
	"2026-10-09", // Hangul Day
	"2026-12-25", // Christmas
	"2026-12-31", // Year-end closing day
}

// nyseHolidays lists NYSE full-day closures.
var nyseHolidays = []string{
	// 2025
	"2025-01-01", // New Year's Day
	"2025-01-20", // MLK Day
	"2025-02-17", // Washington's Birthday
	"2025-04-18", // Good Friday
	"2025-05-26", // Memorial Day
	"2025-06-19", // Juneteenth
	"2025-07-04", // Independence Day
	"2025-09-01", // Labor Day
	"2025-11-27", // Thanksgiving
	"2025-12-25", // Christmas
	// 2026
	"2026-01-01", // New Year's Day
	"2026-01-19", // MLK Day
	"2026-02-16", // Washington's Birthday
	"2026-04-03", // Good Friday
	"2026-05-25", // Memorial Day
	"2026-06-19", // Juneteenth
	"2026-07-03", // Independence Day (observed)
	"2026-09-07", // Labor Day
	"2026-11-26", // Thanksgiving
	"2026-12-25", // Christmas
}

func (c *marketCalendar) isTradingDay(localDay time.Time) bool {
	if localDay.Weekday() == time.Saturday || localDay.Weekday() == time.Sunday {
		return false
	}
	_, holiday := c.holidays[localDay.Format("2006-01-02")]
	return !holiday
}

// IsOpen reports whether the market is accepting orders at instant t.
func (s *Service) IsOpen(market domain.Market, t time.Time) bool {
	cal, ok := s.calendars[market]
	if !ok {
		return false
	}

	local := t.In(cal.timezone)
	if !cal.isTradingDay(local) {
		return false
	}

	currentMinutes := local.Hour()*60 + local.Minute()
	openMinutes := cal.window.OpenHour*60 + cal.window.OpenMinute
	closeMinutes := cal.window.CloseHour*60 + cal.window.CloseMinute

	return currentMinutes >= openMinutes && currentMinutes < closeMinutes
}

// NextOpen returns the earliest instant strictly usable for order replay: the
// open of the current session if t is before it on a trading day, otherwise
// the open of the next trading day. The returned instant always satisfies
// IsOpen(market, NextOpen(market, t)).
func (s *Service) NextOpen(market domain.Market, t time.Time) time.Time {
	cal, ok := s.calendars[market]
	if !ok {
		return t
	}

	local := t.In(cal.timezone)

	openAt := func(day time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(),
			cal.window.OpenHour, cal.replayOpenMinute, 0, 0, cal.timezone)
	}

	// Today's open still qualifies when t is before it on a trading day.
	if cal.isTradingDay(local) && local.Before(openAt(local)) {
		return openAt(local)
	}

	day := local.AddDate(0, 0, 1)
	for i := 0; i < 366; i++ {
		if cal.isTradingDay(day) {
			return openAt(day)
		}
		day = day.AddDate(0, 0, 1)
	}

	// A year without a trading day means a broken holiday table.
	s.log.Error().Str("market", string(market)).Msg("No trading day found within a year")
	return openAt(day)
}

// LastTradingDay returns the most recent trading day at or before the given
// date, truncated to midnight in the market's timezone.
func (s *Service) LastTradingDay(market domain.Market, date time.Time) time.Time {
	cal, ok := s.calendars[market]
	if !ok {
		return date
	}

	local := date.In(cal.timezone)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cal.timezone)
	for i := 0; i < 366; i++ {
		if cal.isTradingDay(day) {
			return day
		}
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// Timezone returns the market's local timezone.
func (s *Service) Timezone(market domain.Market) *time.Location {
	if cal, ok := s.calendars[market]; ok {
		return cal.timezone
	}
	return time.UTC
}
