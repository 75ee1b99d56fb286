package utils

import (
	"io"
	"testing"
	"time"

	"market-pulse/src/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMICForSymbol(t *testing.T) {
	tests := map[string]string{
		"AAPL":   "xnys",
		"VOD.L":  "xlon",
		"SAP.DE": "xfra",
		"7203.T": "xtks",
		"BRK.B":  "xnys",
	}
	for symbol, want := range tests {
		t.Run(symbol, func(t *testing.T) {
			assert.Equal(t, want, MICForSymbol(symbol))
		})
	}
}

func TestCalendarIsShared(t *testing.T) {
	assert.Same(t, GetCalendar("AAPL"), GetCalendar("MSFT"))
}

func TestWeekendIsClosed(t *testing.T) {
	mh := NewMarketHours([]string{"AAPL", "MSFT"}, logger.NewLoggerWithWriter(io.Discard, "ERROR", "test"))

	// Sunday 2024-06-16 15:00 UTC
	sunday := time.Date(2024, 6, 16, 15, 0, 0, 0, time.UTC)
	assert.False(t, mh.AnyMarketOpen(sunday))
}

func TestTradingDaysBackSkipsWeekends(t *testing.T) {
	// Monday 2024-06-17
	end := time.Date(2024, 6, 17, 20, 0, 0, 0, time.UTC)
	days := TradingDaysBack("AAPL", end, 3)

	require.Len(t, days, 3)
	assert.Equal(t, "2024-06-13", days[0].Format("2006-01-02"))
	assert.Equal(t, "2024-06-14", days[1].Format("2006-01-02"))
	assert.Equal(t, "2024-06-17", days[2].Format("2006-01-02"))
}
