package utils

import (
	"time"

	"market-pulse/src/logger"
)

// MarketHours gates the price cadence on the exchanges of the roster
type MarketHours struct {
	calendars []*TradingCalendar
	logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewMarketHours(symbols []string, l *logger.Logger) *MarketHours {
	seen := make(map[*TradingCalendar]bool)
	mh := &MarketHours{logger: l}

	for _, symbol := range symbols {
		cal := GetCalendar(symbol)
		if !seen[cal] {
			seen[cal] = true
			mh.calendars = append(mh.calendars, cal)
		}
	}

	l.Info("Mapped %d symbols to %d unique calendars", len(symbols), len(mh.calendars))
	return mh
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any tracked exchange is open at t
func (mh *MarketHours) AnyMarketOpen(t time.Time) bool {
	for _, cal := range mh.calendars {
		if cal.IsOpenOnMinute(t) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// TradingDaysBack lists the last n trading days ending at (and including) end,
// oldest first, using the calendar of symbol.
func TradingDaysBack(symbol string, end time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	cal := GetCalendar(symbol)

	days := make([]time.Time, 0, n)
	d := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for guard := 0; len(days) < n && guard < n*3+14; guard++ {
		// noon keeps the timezone shift on the same calendar day
		if cal.IsTradingDay(d.Add(12 * time.Hour)) {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, -1)
	}

	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}
